package obia

import (
	"fmt"

	"github.com/wgdzlh/obialib/log"

	"go.uber.org/zap"
)

// Classify writes label into the class of every object passing all threshold
// and adjacency rules and returns how many objects were written. Neighbors for the
// adjacency rules are only computed for objects that already pass the
// threshold rules. Without overwrite, classified objects keep their label.
func (ios *ImageObjects) Classify(label string, thresholdRules, adjacentRules []Rule, overwrite bool) (n int, err error) {
	if label == "" {
		err = ErrEmptyLabel
		return
	}
	if len(thresholdRules) == 0 && len(adjacentRules) == 0 {
		err = fmt.Errorf("%w: class %q", ErrNoRules, label)
		return
	}
	for _, r := range append(append([]Rule(nil), thresholdRules...), adjacentRules...) {
		if err = r.Validate(); err != nil {
			err = fmt.Errorf("class %q: %w", label, err)
			return
		}
	}
	var groups []Mask
	if len(thresholdRules) > 0 {
		var thr Mask
		if thr, err = ios.ApplyRules(thresholdRules); err != nil {
			return
		}
		groups = append(groups, thr)
		if len(adjacentRules) > 0 {
			if ids := thr.True(); len(ids) > 0 {
				if err = ios.ComputeNeighbors(ids...); err != nil {
					return
				}
			}
		}
	} else if len(adjacentRules) > 0 {
		var missing []ObjectID
		for _, o := range ios.Objects() {
			if !o.nebsKnown {
				missing = append(missing, o.ID)
			}
		}
		if len(missing) > 0 {
			if err = ios.ComputeNeighbors(missing...); err != nil {
				return
			}
		}
	}
	if len(adjacentRules) > 0 {
		for _, r := range adjacentRules {
			if err = ios.ComputeNeighborValues(r.Field, nil, false); err != nil {
				err = fmt.Errorf("class %q: %w", label, err)
				return
			}
		}
		var adj Mask
		if adj, err = ios.ApplyRules(adjacentRules); err != nil {
			return
		}
		groups = append(groups, adj)
	}
	update := ios.and(groups...)
	for _, o := range ios.order {
		if o.absorbed || !update[o.ID] {
			continue
		}
		if !overwrite && o.Class != "" {
			continue
		}
		o.Class = label
		n++
	}
	log.Info(ios.logTag+"classifying objects", zap.String("class", label), zap.Int("cnt", n), zap.Bool("overwrite", overwrite))
	return
}
