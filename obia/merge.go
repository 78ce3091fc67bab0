package obia

import (
	"fmt"
	"math"
	"sort"

	"github.com/wgdzlh/obialib/log"

	"go.uber.org/zap"
)

// NoIterLimit disables the per-object merge cap.
const NoIterLimit = -1

// DissolveMode selects when logical merges become geometric unions. Results
// are the same either way; only the number of union calls differs.
type DissolveMode uint8

const (
	DissolveEachRound DissolveMode = iota
	DissolveAtEnd
)

// StatsMode selects when the standard deviations used for merge distances
// are taken.
type StatsMode uint8

const (
	StatsPerRound StatsMode = iota
	StatsFrozen
)

type PairwiseKind uint8

const (
	// PairWithin: |seed - neighbor| <= Range on Field.
	PairWithin PairwiseKind = iota + 1
	// PairThreshold: neighbor's Field <op> Threshold, or <op> the seed's own
	// value of Field when SelfThreshold is set.
	PairThreshold
)

// PairwiseCriterion is checked between a merge seed and each candidate neighbor.
type PairwiseCriterion struct {
	Kind          PairwiseKind
	Field         string
	Range         float64
	Op            Op
	Threshold     float64
	SelfThreshold bool
}

func (pc PairwiseCriterion) String() string {
	switch pc.Kind {
	case PairWithin:
		return fmt.Sprintf("within(%s, %g)", pc.Field, pc.Range)
	case PairThreshold:
		if pc.SelfThreshold {
			return fmt.Sprintf("threshold(%s %s self)", pc.Field, pc.Op)
		}
		return fmt.Sprintf("threshold(%s %s %g)", pc.Field, pc.Op, pc.Threshold)
	}
	return fmt.Sprintf("pairwise(%d)", uint8(pc.Kind))
}

func (pc PairwiseCriterion) validate() error {
	switch pc.Kind {
	case PairWithin:
	case PairThreshold:
		if !pc.Op.Valid() {
			return fmt.Errorf("%w: %d in %s", ErrUnsupportedOp, uint8(pc.Op), pc)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPairwise, pc)
	}
	return nil
}

func (pc PairwiseCriterion) match(r, n *Object) (bool, error) {
	nv, ok := n.Values[pc.Field]
	if !ok {
		return false, fmt.Errorf("%w: %q on object %d in %s", ErrMissingField, pc.Field, n.ID, pc)
	}
	switch pc.Kind {
	case PairWithin:
		rv, ok := r.Values[pc.Field]
		if !ok {
			return false, fmt.Errorf("%w: %q on object %d in %s", ErrMissingField, pc.Field, r.ID, pc)
		}
		return math.Abs(rv-nv) <= pc.Range, nil
	case PairThreshold:
		thr := pc.Threshold
		if pc.SelfThreshold {
			if thr, ok = r.Values[pc.Field]; !ok {
				return false, fmt.Errorf("%w: %q on object %d in %s", ErrMissingField, pc.Field, r.ID, pc)
			}
		}
		return pc.Op.Compare(nv, thr), nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupportedPairwise, pc)
}

// MergeEvent describes one logical merge of Source into Target.
type MergeEvent struct {
	Round      int
	Source     ObjectID
	Target     ObjectID
	Distance   float64
	SourceArea float64
	TargetArea float64 // before the merge
}

// MergeRecorder receives every merge as it happens.
type MergeRecorder interface {
	RecordMerge(ev MergeEvent) error
}

type MergeOptions struct {
	// Candidates select objects allowed to merge; none means all.
	Candidates []Criterion
	Pairwise   []PairwiseCriterion
	// GrowFields drive the similarity distance; defaults to all value fields.
	GrowFields []string
	// UseSeeds keeps MergeSeed flags set by MergeSeeds; otherwise every
	// object is a seed.
	UseSeeds      bool
	MaxIterations int
	Dissolve      DissolveMode
	Stats         StatsMode
	Recorder      MergeRecorder
}

func DefaultMergeOptions() MergeOptions {
	return MergeOptions{MaxIterations: NoIterLimit}
}

type MergeSummary struct {
	Rounds    int
	Merges    int
	Retired   int // seeds that found no eligible neighbor
	Dissolved int
}

func (ios *ImageObjects) validateMerge(opts *MergeOptions) error {
	for _, c := range opts.Candidates {
		if err := c.validate(); err != nil {
			return fmt.Errorf("merge candidate criterion: %w", err)
		}
		if err := ios.requireField(c.Field); err != nil {
			return fmt.Errorf("merge candidate criterion %s: %w", c, err)
		}
	}
	for _, pc := range opts.Pairwise {
		if err := pc.validate(); err != nil {
			return err
		}
		if err := ios.requireField(pc.Field); err != nil {
			return fmt.Errorf("pairwise criterion %s: %w", pc, err)
		}
	}
	if len(opts.GrowFields) == 0 {
		for _, vf := range ios.valueFields {
			opts.GrowFields = append(opts.GrowFields, vf.Field)
		}
	}
	for _, gf := range opts.GrowFields {
		if err := ios.requireField(gf); err != nil {
			return fmt.Errorf("grow field: %w", err)
		}
	}
	for _, vf := range ios.valueFields {
		if err := ios.requireField(vf.Field); err != nil {
			return fmt.Errorf("value field: %w", err)
		}
	}
	switch opts.Dissolve {
	case DissolveEachRound, DissolveAtEnd:
	default:
		return fmt.Errorf("unknown dissolve mode %d", opts.Dissolve)
	}
	return nil
}

// PseudoMerge repeatedly takes the smallest active object, merges it into
// the neighbor closest to it in summed standardized distance over the grow
// fields, and retires it, until no active object remains.
//
// An object is active while it is a merge seed, a merge candidate, mergeable
// and has directly absorbed fewer than MaxIterations objects. A seed without
// an eligible neighbor is retired for good, even if a later merge would give it one.
func (ios *ImageObjects) PseudoMerge(opts MergeOptions) (sum MergeSummary, err error) {
	if err = ios.validateMerge(&opts); err != nil {
		return
	}
	log.Info(ios.logTag+"beginning pseudo-merge to determine merges",
		zap.Int("objects", ios.Len()), zap.Strings("growFields", opts.GrowFields),
		zap.Int("maxIter", opts.MaxIterations), zap.Bool("useSeeds", opts.UseSeeds))

	seeds := 0
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		o.MergeCount = 0
		o.pending = 0
		o.Mergeable = true
		o.MergePath = nil
		o.candKnown = false
		if !opts.UseSeeds {
			o.MergeSeed = true
		}
		if o.MergeSeed {
			seeds++
		}
	}
	ios.findMergeCandidates(opts.Candidates)
	log.Debug(ios.logTag+"merge seeds found", zap.Int("cnt", seeds))

	stats, err := ios.growStats(opts.GrowFields)
	if err != nil {
		return
	}
	active := ios.activeObjects(opts.MaxIterations)
	var missing []ObjectID
	for _, o := range active {
		if !o.nebsKnown {
			missing = append(missing, o.ID)
		}
	}
	if len(missing) > 0 {
		if err = ios.ComputeNeighbors(missing...); err != nil {
			return
		}
	}
	for _, gf := range opts.GrowFields {
		if !ios.hasNVField(gf) {
			if err = ios.ComputeNeighborValues(gf, nil, false); err != nil {
				return
			}
		}
	}

	for len(active) > 0 {
		sum.Rounds++
		r := active[0]
		log.Debug(ios.logTag+"mergeable objects", zap.Int("cnt", len(active)), zap.Int64("current", r.ID))
		if !r.nebsKnown {
			ios.findNeighbors(r)
		}
		m, dist, e := ios.bestMatch(r, opts.GrowFields, opts.Pairwise, stats)
		if e != nil {
			err = fmt.Errorf("round %d, object %d: %w", sum.Rounds, r.ID, e)
			return
		}
		if m != nil {
			ev := MergeEvent{Round: sum.Rounds, Source: r.ID, Target: m.ID, Distance: dist,
				SourceArea: r.Area(), TargetArea: m.Area()}
			if err = ios.mergeInto(r, m); err != nil {
				err = fmt.Errorf("round %d, merging %d into %d: %w", sum.Rounds, r.ID, m.ID, err)
				return
			}
			sum.Merges++
			log.Debug(ios.logTag+"match found", zap.Int64("id", r.ID), zap.Int64("match", m.ID), zap.Float64("dist", dist))
			if opts.Recorder != nil {
				if e = opts.Recorder.RecordMerge(ev); e != nil {
					log.Error(ios.logTag+"record merge failed", zap.Int64("id", r.ID), zap.Error(e))
				}
			}
		} else {
			sum.Retired++
		}
		r.Mergeable = false
		r.MergeCandidate = false

		if opts.Dissolve == DissolveEachRound {
			var n int
			if n, err = ios.Dissolve(); err != nil {
				return
			}
			sum.Dissolved += n
		}
		ios.findMergeCandidates(opts.Candidates)
		if opts.Stats == StatsPerRound {
			if stats, err = ios.growStats(opts.GrowFields); err != nil {
				return
			}
		}
		active = ios.activeObjects(opts.MaxIterations)
	}
	if opts.Dissolve == DissolveAtEnd {
		var n int
		if n, err = ios.Dissolve(); err != nil {
			return
		}
		sum.Dissolved += n
	}
	log.Info(ios.logTag+"pseudo-merge done", zap.Int("rounds", sum.Rounds), zap.Int("merges", sum.Merges),
		zap.Int("retired", sum.Retired), zap.Int("objects", ios.Len()))
	return
}

func (ios *ImageObjects) growStats(fields []string) (map[string]FieldStats, error) {
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

// findMergeCandidates: an object once marked non-candidate stays so.
func (ios *ImageObjects) findMergeCandidates(criteria []Criterion) {
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		ok := !o.candKnown || o.MergeCandidate
		for _, c := range criteria {
			if !ok {
				break
			}
			v, has := o.Values[c.Field]
			ok = has && c.Op.Compare(v, c.Threshold)
		}
		o.MergeCandidate = ok
		o.candKnown = true
	}
}

// continueIter counts direct absorptions only; objects an absorbed source
// had taken in earlier do not count against the target.
func continueIter(o *Object, maxIter int) bool {
	return maxIter < 0 || o.MergeCount+o.pending < maxIter
}

// activeObjects sorted by area ascending, ties in encounter order.
func (ios *ImageObjects) activeObjects(maxIter int) []*Object {
	var out []*Object
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		if o.MergeSeed && o.MergeCandidate && o.Mergeable && continueIter(o, maxIter) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Area(), out[j].Area()
		if ai != aj {
			return ai < aj
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// bestMatch returns the eligible neighbor with the least summed standardized
// distance, the first one found on ties, or nil. A NaN grow value on either
// side makes the pair incomparable.
func (ios *ImageObjects) bestMatch(r *Object, growth []string, pairwise []PairwiseCriterion, stats map[string]FieldStats) (best *Object, bestDist float64, err error) {
	for _, nid := range r.nebs {
		n, ok := ios.objs[nid]
		if !ok || n.absorbed || !n.Mergeable {
			continue
		}
		matched := true
		for _, pc := range pairwise {
			if matched, err = pc.match(r, n); err != nil {
				return nil, 0, err
			}
			if !matched {
				break
			}
		}
		if !matched {
			continue
		}
		var d float64
		comparable := true
		for _, gf := range growth {
			rv, ok := r.Values[gf]
			if !ok {
				return nil, 0, fmt.Errorf("%w: %q on object %d", ErrMissingField, gf, r.ID)
			}
			nv, ok := n.Values[gf]
			if !ok {
				return nil, 0, fmt.Errorf("%w: %q on object %d", ErrMissingField, gf, n.ID)
			}
			if math.IsNaN(rv) || math.IsNaN(nv) {
				comparable = false
				break
			}
			// a constant field separates nothing
			if std := stats[gf].Std; std > 0 {
				d += math.Abs(rv-nv) / std
			}
		}
		if !comparable {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = n, d
		}
	}
	return
}

// mergeInto logically folds r into m; geometries are untouched until Dissolve.
func (ios *ImageObjects) mergeInto(r, m *Object) error {
	rArea, mArea := r.Area(), m.Area()
	merged := make(map[string]float64, len(ios.valueFields))
	for _, vf := range ios.valueFields {
		if vf.Field == AreaField {
			continue
		}
		rv, ok := r.Values[vf.Field]
		if !ok {
			return fmt.Errorf("%w: value field %q on object %d", ErrMissingField, vf.Field, r.ID)
		}
		mv, ok := m.Values[vf.Field]
		if !ok {
			return fmt.Errorf("%w: value field %q on object %d", ErrMissingField, vf.Field, m.ID)
		}
		v, err := aggregate(vf.Agg, rv, rArea, mv, mArea)
		if err != nil {
			log.Error(ios.logTag+"unknown agg type for value field", zap.String("field", vf.Field), zap.String("agg", string(vf.Agg)))
			return fmt.Errorf("value field %q: %w", vf.Field, err)
		}
		merged[vf.Field] = v
	}
	for f, v := range merged {
		m.Values[f] = v
	}
	m.Values[AreaField] = rArea + mArea

	if !m.nebsKnown {
		ios.findNeighbors(m)
	}
	for _, n := range r.nebs {
		if n != m.ID && !m.hasNeighbor(n) {
			m.nebs = append(m.nebs, n)
		}
	}
	ios.ReplaceNeighbor(r.ID, m.ID, true)

	for _, f := range ios.nvFields {
		v, ok := m.Values[f]
		if !ok {
			ios.dropNeighborValue(f, r.ID)
			continue
		}
		ios.ReplaceNeighborValue(f, r.ID, m.ID, v)
		ios.refreshNeighborValue(f, m.ID, v)
		m.setNeighborValues(f, ios.lookupNeighborValues(m, f))
	}

	m.MergePath = append(m.MergePath, r.MergePath...)
	m.MergePath = append(m.MergePath, r.ID)
	m.pending++
	m.MergeSeed = true

	r.MergePath = nil
	r.pending = 0
	r.absorbed = true
	r.absorbedInto = m.ID
	return nil
}

func (ios *ImageObjects) dropNeighborValue(field string, id ObjectID) {
	for _, o := range ios.order {
		if nv, ok := o.neighborValues(field); ok {
			o.nv[field], _ = removeNeighborValue(nv, id)
		}
	}
}

// Dissolve unions every object's geometry with the objects in its merge
// path, drops the absorbed objects and adds the object's direct absorptions
// to MergeCount. It returns the number of objects dissolved.
func (ios *ImageObjects) Dissolve() (n int, err error) {
	gone := map[ObjectID]struct{}{}
	defer func() {
		ios.drop(gone)
	}()
	for _, o := range ios.order {
		if o.absorbed || len(o.MergePath) == 0 {
			continue
		}
		log.Debug(ios.logTag+"merging", zap.Int64("id", o.ID), zap.Int64s("path", o.MergePath))
		var (
			geom    = o.Geom
			interim []Geometry
			parts   = make([]*Object, 0, len(o.MergePath))
		)
		for _, aid := range o.MergePath {
			a, ok := ios.objs[aid]
			if !ok {
				err = fmt.Errorf("%w: %d in merge path of %d", ErrUnknownObject, aid, o.ID)
			} else if geom, err = geom.Union(a.Geom); err != nil {
				err = fmt.Errorf("dissolve %d into %d: %w", aid, o.ID, err)
			}
			if err != nil {
				for _, g := range interim {
					g.Destroy()
				}
				return
			}
			interim = append(interim, geom)
			parts = append(parts, a)
		}
		for _, g := range interim[:len(interim)-1] {
			g.Destroy()
		}
		o.Geom.Destroy()
		o.Geom = geom
		for _, a := range parts {
			a.Geom.Destroy()
			a.Geom = nil
			gone[a.ID] = struct{}{}
		}
		o.MergeCount += o.pending
		o.pending = 0
		n += len(o.MergePath)
		o.MergePath = nil
	}
	if n > 0 {
		log.Debug(ios.logTag+"performed calculated merges", zap.Int("dissolved", n), zap.Int("objects", len(ios.order)-len(gone)))
	}
	return
}
