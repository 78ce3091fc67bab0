package obia

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FieldStats are population statistics of one field over the live objects
// that carry it.
type FieldStats struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

func (ios *ImageObjects) column(field string) []float64 {
	xs := make([]float64, 0, len(ios.order))
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		if v, ok := o.Values[field]; ok && !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	return xs
}

func (ios *ImageObjects) Stats(field string) (st FieldStats, err error) {
	if err = ios.requireField(field); err != nil {
		return
	}
	xs := ios.column(field)
	st.Count = len(xs)
	if st.Count == 0 {
		st.Mean, st.Std, st.Min, st.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return
	}
	st.Mean, st.Std = stat.PopMeanStdDev(xs, nil)
	st.Min = floats.Min(xs)
	st.Max = floats.Max(xs)
	return
}

// ObjectStats describes the given fields, or every known field when none given.
func (ios *ImageObjects) ObjectStats(fields ...string) (map[string]FieldStats, error) {
	if len(fields) == 0 {
		fields = ios.fieldOrder
	}
	out := make(map[string]FieldStats, len(fields))
	for _, f := range fields {
		st, err := ios.Stats(f)
		if err != nil {
			return nil, err
		}
		out[f] = st
	}
	return out, nil
}
