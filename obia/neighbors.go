package obia

import (
	"fmt"

	"github.com/wgdzlh/obialib/log"

	"go.uber.org/zap"
)

// ComputeNeighbors records, for each given object (all live objects when
// none given), the ids of every other live object its geometry touches.
// Objects outside the subset are left untouched.
func (ios *ImageObjects) ComputeNeighbors(ids ...ObjectID) error {
	var subset []*Object
	if len(ids) == 0 {
		log.Warn(ios.logTag + "no subset provided when finding neighbors, computation may be slow")
		subset = ios.Objects()
	} else {
		subset = make([]*Object, 0, len(ids))
		for _, id := range ids {
			o, ok := ios.objs[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownObject, id)
			}
			if o.absorbed {
				continue
			}
			subset = append(subset, o)
		}
	}
	found := 0
	for _, o := range subset {
		ios.findNeighbors(o)
		found += len(o.nebs)
	}
	if found == 0 && len(subset) > 0 {
		log.Warn(ios.logTag+"no neighbors found", zap.Int("subset", len(subset)))
	}
	log.Debug(ios.logTag+"neighbors computed", zap.Int("subset", len(subset)), zap.Int("links", found))
	return nil
}

func (ios *ImageObjects) findNeighbors(o *Object) {
	nebs := []ObjectID{}
	seen := map[ObjectID]bool{o.ID: true}
	// undissolved parts still count toward o's extent
	geoms := []Geometry{o.Geom}
	for _, aid := range o.MergePath {
		if a, ok := ios.objs[aid]; ok && a.Geom != nil {
			geoms = append(geoms, a.Geom)
		}
	}
	for _, p := range ios.order {
		if p == o || !touchesAny(geoms, p.Geom) {
			continue
		}
		// pending absorptions stand in for their absorber
		id := ios.resolve(p.ID)
		if seen[id] {
			continue
		}
		seen[id] = true
		nebs = append(nebs, id)
	}
	o.setNeighbors(nebs)
	for _, f := range ios.nvFields {
		o.setNeighborValues(f, ios.lookupNeighborValues(o, f))
	}
}

func touchesAny(geoms []Geometry, g Geometry) bool {
	for _, x := range geoms {
		if x.Touches(g) {
			return true
		}
	}
	return false
}

func (ios *ImageObjects) lookupNeighborValues(o *Object, field string) []NeighborValue {
	nv := make([]NeighborValue, 0, len(o.nebs))
	for _, n := range o.nebs {
		if p, ok := ios.objs[n]; ok {
			if v, ok := p.Values[field]; ok {
				nv = append(nv, NeighborValue{ID: n, Value: v})
			}
		}
	}
	return nv
}

// ReplaceNeighbor swaps oldID for newID in every computed neighbor list, and
// in every merge path when alsoMergePath is set. newID is never inserted into
// its own list and never duplicated.
func (ios *ImageObjects) ReplaceNeighbor(oldID, newID ObjectID, alsoMergePath bool) {
	for _, o := range ios.order {
		if o.nebsKnown {
			o.nebs = replaceID(o.nebs, oldID, newID, o.ID)
		}
		if alsoMergePath && len(o.MergePath) > 0 {
			o.MergePath = replaceID(o.MergePath, oldID, newID, o.ID)
		}
	}
}

func replaceID(ids []ObjectID, oldID, newID, self ObjectID) []ObjectID {
	at := -1
	for i, id := range ids {
		if id == oldID {
			at = i
			break
		}
	}
	if at < 0 {
		return ids
	}
	out := make([]ObjectID, 0, len(ids))
	hasNew := false
	for _, id := range ids {
		if id == oldID {
			continue
		}
		if id == newID {
			hasNew = true
		}
		out = append(out, id)
	}
	if !hasNew && self != newID {
		out = append(out, newID)
	}
	return out
}

// ComputeNeighborValues caches {neighbor id -> neighbor's field value} on
// every object of subset (all live objects when nil) whose neighbor list is
// computed. With computeNeighbors, missing neighbor lists are computed first.
func (ios *ImageObjects) ComputeNeighborValues(field string, subset []ObjectID, computeNeighbors bool) error {
	if err := ios.requireField(field); err != nil {
		return err
	}
	objs := ios.Objects()
	if subset != nil {
		objs = objs[:0]
		for _, id := range subset {
			o, ok := ios.objs[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownObject, id)
			}
			if !o.absorbed {
				objs = append(objs, o)
			}
		}
	}
	if computeNeighbors {
		var missing []ObjectID
		for _, o := range objs {
			if !o.nebsKnown {
				missing = append(missing, o.ID)
			}
		}
		if len(missing) > 0 {
			if err := ios.ComputeNeighbors(missing...); err != nil {
				return err
			}
		}
	}
	ios.addNVField(field)
	n := 0
	for _, o := range objs {
		if !o.nebsKnown {
			continue
		}
		o.setNeighborValues(field, ios.lookupNeighborValues(o, field))
		n++
	}
	log.Debug(ios.logTag+"neighbor values computed", zap.String("field", field), zap.Int("objects", n))
	return nil
}

func (ios *ImageObjects) addNVField(field string) {
	for _, f := range ios.nvFields {
		if f == field {
			return
		}
	}
	ios.nvFields = append(ios.nvFields, field)
}

func (ios *ImageObjects) hasNVField(field string) bool {
	for _, f := range ios.nvFields {
		if f == field {
			return true
		}
	}
	return false
}

// NeighborValues returns the cached neighbor values of id for field; ok is
// false when none were computed for that object.
func (ios *ImageObjects) NeighborValues(id ObjectID, field string) (nv []NeighborValue, ok bool) {
	o, found := ios.objs[id]
	if !found {
		return
	}
	nv, ok = o.neighborValues(field)
	if ok {
		nv = append([]NeighborValue(nil), nv...)
	}
	return
}

// ReplaceNeighborValue rewrites cached entries of oldID to newID carrying newValue.
func (ios *ImageObjects) ReplaceNeighborValue(field string, oldID, newID ObjectID, newValue float64) {
	for _, o := range ios.order {
		nv, ok := o.neighborValues(field)
		if !ok {
			continue
		}
		var removed bool
		if nv, removed = removeNeighborValue(nv, oldID); !removed {
			continue
		}
		if o.ID != newID {
			nv = upsertNeighborValue(nv, newID, newValue)
		}
		o.nv[field] = nv
	}
}

// refreshNeighborValue updates id's value in place wherever it is cached.
func (ios *ImageObjects) refreshNeighborValue(field string, id ObjectID, v float64) {
	if !ios.hasNVField(field) {
		return
	}
	for _, o := range ios.order {
		nv, ok := o.neighborValues(field)
		if !ok {
			continue
		}
		for i := range nv {
			if nv[i].ID == id {
				nv[i].Value = v
				break
			}
		}
	}
}
