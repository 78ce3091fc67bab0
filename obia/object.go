package obia

// ObjectID identifies an object for the collection's whole lifetime.
type ObjectID = int64

// NeighborValue is a neighbor's current value of some field.
type NeighborValue struct {
	ID    ObjectID
	Value float64
}

// Object is one polygon region with its attributes and merge bookkeeping.
type Object struct {
	ID    ObjectID
	Geom  Geometry
	Class string // empty: unclassified

	Values map[string]float64
	Texts  map[string]string

	MergeSeed      bool
	MergeCandidate bool
	Mergeable      bool
	MergeCount     int
	// ids logically absorbed but not yet dissolved into Geom
	MergePath []ObjectID

	nebs      []ObjectID
	nebsKnown bool
	nv        map[string][]NeighborValue

	candKnown    bool
	pending      int // direct absorptions awaiting dissolve
	absorbedInto ObjectID
	absorbed     bool
	seq          int
}

func NewObject(id ObjectID, geom Geometry) *Object {
	return &Object{
		ID:     id,
		Geom:   geom,
		Values: map[string]float64{},
		Texts:  map[string]string{},
	}
}

// HasNeighbors distinguishes "computed, possibly empty" from "not computed".
func (o *Object) HasNeighbors() bool {
	return o.nebsKnown
}

// Neighbors returns a copy of the neighbor list, nil when not computed.
func (o *Object) Neighbors() []ObjectID {
	if !o.nebsKnown {
		return nil
	}
	return append(make([]ObjectID, 0, len(o.nebs)), o.nebs...)
}

// SetNeighbors restores a previously computed neighbor list, e.g. one read
// back from an export. Lists must stay symmetric across the collection.
func (o *Object) SetNeighbors(ids []ObjectID) {
	o.setNeighbors(append([]ObjectID{}, ids...))
}

func (o *Object) Value(field string) (v float64, ok bool) {
	v, ok = o.Values[field]
	return
}

func (o *Object) Area() float64 {
	return o.Values[AreaField]
}

// Absorbed reports whether the object was merged into another and awaits dissolve.
func (o *Object) Absorbed() bool {
	return o.absorbed
}

func (o *Object) setNeighbors(ids []ObjectID) {
	if ids == nil {
		ids = []ObjectID{}
	}
	o.nebs = ids
	o.nebsKnown = true
}

func (o *Object) hasNeighbor(id ObjectID) bool {
	for _, n := range o.nebs {
		if n == id {
			return true
		}
	}
	return false
}

func (o *Object) neighborValues(field string) ([]NeighborValue, bool) {
	if o.nv == nil {
		return nil, false
	}
	nv, ok := o.nv[field]
	return nv, ok
}

func (o *Object) setNeighborValues(field string, nv []NeighborValue) {
	if o.nv == nil {
		o.nv = map[string][]NeighborValue{}
	}
	o.nv[field] = nv
}

// upsert keeps an existing entry's position and appends new ones.
func upsertNeighborValue(nv []NeighborValue, id ObjectID, v float64) []NeighborValue {
	for i := range nv {
		if nv[i].ID == id {
			nv[i].Value = v
			return nv
		}
	}
	return append(nv, NeighborValue{ID: id, Value: v})
}

func removeNeighborValue(nv []NeighborValue, id ObjectID) ([]NeighborValue, bool) {
	for i := range nv {
		if nv[i].ID == id {
			return append(nv[:i], nv[i+1:]...), true
		}
	}
	return nv, false
}
