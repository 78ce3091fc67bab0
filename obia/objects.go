package obia

import (
	"fmt"
	"math"

	"github.com/wgdzlh/obialib/log"

	"go.uber.org/zap"
)

// Field names created or read by the collection itself.
const (
	AreaField      = "area"
	CompactField   = "compactness"
	ClassField     = "class"
	NeighborsField = "neighbors"
	MergePathField = "merge_path"
	MergeCountFld  = "merge_count"
	nvFieldSuffix  = "_nv"
)

// NeighborValueField is the export column name holding neighbor values of field.
func NeighborValueField(field string) string {
	return field + nvFieldSuffix
}

// ImageObjects owns a set of objects addressed by id. It is the single
// mutable structure every operation in this package works on.
type ImageObjects struct {
	objs        map[ObjectID]*Object
	order       []*Object // encounter order
	valueFields []ValueField
	fields      map[string]struct{}
	fieldOrder  []string
	nvFields    []string
	ruleFields  []string
	logTag      string
}

// NewImageObjects builds a collection. Ids must be unique and every value
// field needs a known aggregation policy.
func NewImageObjects(objs []*Object, valueFields []ValueField) (ios *ImageObjects, err error) {
	vfs := make([]ValueField, 0, len(valueFields))
	seen := map[string]bool{}
	for _, vf := range valueFields {
		var p AggPolicy
		if p, err = ParseAggPolicy(vf.Field, string(vf.Agg)); err != nil {
			return
		}
		if seen[vf.Field] {
			continue
		}
		seen[vf.Field] = true
		vfs = append(vfs, ValueField{Field: vf.Field, Agg: p})
	}
	ios = &ImageObjects{
		objs:        make(map[ObjectID]*Object, len(objs)),
		order:       make([]*Object, 0, len(objs)),
		valueFields: vfs,
		fields:      map[string]struct{}{},
		logTag:      "ImageObjects:",
	}
	var dups []ObjectID
	for _, o := range objs {
		if o == nil {
			continue
		}
		if o.Geom == nil {
			err = fmt.Errorf("%w: object %d", ErrNilGeometry, o.ID)
			return nil, err
		}
		if _, ok := ios.objs[o.ID]; ok {
			log.Warn(ios.logTag+"non-unique object id not supported", zap.Int64("id", o.ID))
			dups = append(dups, o.ID)
			continue
		}
		if o.Values == nil {
			o.Values = map[string]float64{}
		}
		if o.Texts == nil {
			o.Texts = map[string]string{}
		}
		if _, ok := o.Values[AreaField]; !ok {
			o.Values[AreaField] = o.Geom.Area()
		}
		o.Mergeable = true
		o.seq = len(ios.order)
		ios.objs[o.ID] = o
		ios.order = append(ios.order, o)
		for f := range o.Values {
			ios.registerField(f)
		}
	}
	if len(dups) > 0 {
		err = fmt.Errorf("%w: %v", ErrDuplicateID, dups)
		return nil, err
	}
	log.Info(ios.logTag+"loaded objects", zap.Int("cnt", len(ios.order)), zap.Int("valueFields", len(vfs)))
	return
}

func (ios *ImageObjects) registerField(f string) {
	if _, ok := ios.fields[f]; ok {
		return
	}
	ios.fields[f] = struct{}{}
	ios.fieldOrder = append(ios.fieldOrder, f)
}

// Len is the number of live objects.
func (ios *ImageObjects) Len() (n int) {
	for _, o := range ios.order {
		if !o.absorbed {
			n++
		}
	}
	return
}

func (ios *ImageObjects) Get(id ObjectID) (o *Object, ok bool) {
	o, ok = ios.objs[id]
	return
}

// IDs of live objects in encounter order.
func (ios *ImageObjects) IDs() []ObjectID {
	ids := make([]ObjectID, 0, len(ios.order))
	for _, o := range ios.order {
		if !o.absorbed {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Objects returns the live objects in encounter order. The pointers are shared.
func (ios *ImageObjects) Objects() []*Object {
	out := make([]*Object, 0, len(ios.order))
	for _, o := range ios.order {
		if !o.absorbed {
			out = append(out, o)
		}
	}
	return out
}

func (ios *ImageObjects) ValueFields() []ValueField {
	return append([]ValueField(nil), ios.valueFields...)
}

// Fields lists known numeric fields in the order they first appeared.
func (ios *ImageObjects) Fields() []string {
	return append([]string(nil), ios.fieldOrder...)
}

func (ios *ImageObjects) HasField(f string) bool {
	_, ok := ios.fields[f]
	return ok
}

// NeighborValueFields lists fields with cached neighbor values.
func (ios *ImageObjects) NeighborValueFields() []string {
	return append([]string(nil), ios.nvFields...)
}

// RuleFields lists out fields written by rules.
func (ios *ImageObjects) RuleFields() []string {
	return append([]string(nil), ios.ruleFields...)
}

func (ios *ImageObjects) requireField(f string) error {
	if !ios.HasField(f) {
		return fmt.Errorf("%w: %q", ErrMissingField, f)
	}
	return nil
}

// GetValue reads field of object id.
func (ios *ImageObjects) GetValue(id ObjectID, field string) (v float64, err error) {
	o, ok := ios.objs[id]
	if !ok {
		err = fmt.Errorf("%w: %d", ErrUnknownObject, id)
		return
	}
	v, ok = o.Values[field]
	if !ok {
		log.Error(ios.logTag+"cannot get value for field", zap.String("field", field), zap.Int64("id", id))
		err = fmt.Errorf("%w: %q on object %d", ErrMissingField, field, id)
	}
	return
}

// SetValue writes a value and patches every cached neighbor value that refers to it.
func (ios *ImageObjects) SetValue(id ObjectID, field string, v float64) error {
	o, ok := ios.objs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	o.Values[field] = v
	ios.registerField(field)
	ios.refreshNeighborValue(field, id, v)
	return nil
}

// ComputeArea resets the area field from each geometry.
func (ios *ImageObjects) ComputeArea() {
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		o.Values[AreaField] = o.Geom.Area()
		ios.refreshNeighborValue(AreaField, o.ID, o.Values[AreaField])
	}
	ios.registerField(AreaField)
}

// CalcCompactness stores the Polsby-Popper score, 1 for a circle.
func (ios *ImageObjects) CalcCompactness() {
	log.Info(ios.logTag + "calculating object compactness")
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		p := o.Geom.Perimeter()
		c := math.NaN()
		if p > 0 {
			c = 4 * math.Pi * o.Geom.Area() / (p * p)
		}
		o.Values[CompactField] = c
	}
	ios.registerField(CompactField)
}

// resolve follows pending absorptions to the live object standing in for id.
func (ios *ImageObjects) resolve(id ObjectID) ObjectID {
	for i := 0; i <= len(ios.order); i++ {
		o, ok := ios.objs[id]
		if !ok || !o.absorbed {
			return id
		}
		id = o.absorbedInto
	}
	return id
}

func (ios *ImageObjects) drop(ids map[ObjectID]struct{}) {
	if len(ids) == 0 {
		return
	}
	kept := ios.order[:0]
	for _, o := range ios.order {
		if _, ok := ids[o.ID]; ok {
			delete(ios.objs, o.ID)
			continue
		}
		kept = append(kept, o)
	}
	for i := len(kept); i < len(ios.order); i++ {
		ios.order[i] = nil
	}
	ios.order = kept
}

// Destroy releases every object's geometry. The collection must not be used
// afterwards.
func (ios *ImageObjects) Destroy() {
	for _, o := range ios.order {
		if o.Geom != nil {
			o.Geom.Destroy()
			o.Geom = nil
		}
	}
}
