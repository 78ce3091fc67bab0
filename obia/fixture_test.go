package obia_test

import (
	"testing"

	"github.com/wgdzlh/obialib/geomtest"
	"github.com/wgdzlh/obialib/obia"

	"github.com/stretchr/testify/require"
)

// row lays out one unit cell per value along the x axis, ids from 1.
func row(t *testing.T, field string, vals ...float64) *obia.ImageObjects {
	t.Helper()
	objs := make([]*obia.Object, len(vals))
	for i, v := range vals {
		o := obia.NewObject(int64(i+1), geomtest.Rect(i, 0, 1, 1))
		o.Values[field] = v
		objs[i] = o
	}
	ios, err := obia.NewImageObjects(objs, []obia.ValueField{{Field: field, Agg: obia.AggMean}})
	require.NoError(t, err)
	return ios
}

// grid is a 3x2 block of unit cells:
//
//	4 5 6
//	1 2 3
func grid(t *testing.T) *obia.ImageObjects {
	t.Helper()
	vals := []float64{1, 5, 2, 6, 1.5, 7}
	objs := make([]*obia.Object, 0, len(vals))
	for i, v := range vals {
		o := obia.NewObject(int64(i+1), geomtest.Rect(i%3, i/3, 1, 1))
		o.Values["v"] = v
		objs = append(objs, o)
	}
	ios, err := obia.NewImageObjects(objs, []obia.ValueField{{Field: "v", Agg: obia.AggMean}})
	require.NoError(t, err)
	return ios
}

type block struct {
	id   obia.ObjectID
	x, w int
	v    float64
}

func strip(t *testing.T, blocks ...block) *obia.ImageObjects {
	t.Helper()
	objs := make([]*obia.Object, 0, len(blocks))
	for _, b := range blocks {
		o := obia.NewObject(b.id, geomtest.Rect(b.x, 0, b.w, 1))
		o.Values["v"] = b.v
		objs = append(objs, o)
	}
	ios, err := obia.NewImageObjects(objs, []obia.ValueField{{Field: "v", Agg: obia.AggMean}})
	require.NoError(t, err)
	return ios
}

func mustGet(t *testing.T, ios *obia.ImageObjects, id obia.ObjectID) *obia.Object {
	t.Helper()
	o, ok := ios.Get(id)
	require.True(t, ok, "object %d", id)
	return o
}

func touching(ios *obia.ImageObjects, o *obia.Object) (ids []obia.ObjectID) {
	for _, p := range ios.Objects() {
		if p.ID != o.ID && o.Geom.Touches(p.Geom) {
			ids = append(ids, p.ID)
		}
	}
	return
}

type recorder []obia.MergeEvent

func (r *recorder) RecordMerge(ev obia.MergeEvent) error {
	*r = append(*r, ev)
	return nil
}
