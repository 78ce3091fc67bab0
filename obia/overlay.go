package obia

import (
	"fmt"

	"github.com/wgdzlh/obialib/log"

	"go.uber.org/zap"
)

type OverlayOptions struct {
	Predicate Predicate
	// Centroid tests against each other object's centroid instead of its polygon.
	Centroid bool
	// Filter keeps only others passing it; others lacking the field are skipped.
	Filter   *Criterion
	OutField string
}

// OverlayAny marks each live object true when `object <predicate> other`
// holds for at least one of others.
func (ios *ImageObjects) OverlayAny(others []*Object, opts OverlayOptions) (m Mask, err error) {
	if _, ok := predicateNames[opts.Predicate]; !ok {
		err = fmt.Errorf("%w: %s", ErrUnsupportedPredicate, opts.Predicate)
		return
	}
	if opts.Filter != nil {
		if err = opts.Filter.validate(); err != nil {
			return
		}
	}
	var (
		geoms   []Geometry
		derived []Geometry
	)
	defer func() {
		for _, g := range derived {
			g.Destroy()
		}
	}()
	for _, p := range others {
		if p == nil || p.Geom == nil {
			continue
		}
		if f := opts.Filter; f != nil {
			v, ok := p.Values[f.Field]
			if !ok || !f.Op.Compare(v, f.Threshold) {
				continue
			}
		}
		g := p.Geom
		if opts.Centroid {
			if g, err = p.Geom.Centroid(); err != nil {
				err = fmt.Errorf("centroid of object %d: %w", p.ID, err)
				return
			}
			derived = append(derived, g)
		}
		geoms = append(geoms, g)
	}
	log.Debug(ios.logTag+"overlaying objects", zap.Stringer("predicate", opts.Predicate),
		zap.Int("others", len(geoms)), zap.Bool("centroid", opts.Centroid))

	m = make(Mask, len(ios.order))
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		hit := false
		for _, g := range geoms {
			if hit, err = opts.Predicate.Test(o.Geom, g); err != nil {
				return nil, err
			}
			if hit {
				break
			}
		}
		m[o.ID] = hit
	}
	if opts.OutField != "" {
		ios.storeMask(opts.OutField, m)
		ios.addRuleField(opts.OutField)
	}
	return
}
