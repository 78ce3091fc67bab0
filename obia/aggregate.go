package obia

import (
	"fmt"
	"strings"
)

// AggPolicy decides how two objects' values combine when they merge.
type AggPolicy string

const (
	AggMean     AggPolicy = "mean" // area weighted
	AggMajority AggPolicy = "majority"
	AggMinority AggPolicy = "minority"
	AggMinimum  AggPolicy = "minimum"
	AggMaximum  AggPolicy = "maximum"
	AggSum      AggPolicy = "sum"
)

// ValueField is a numeric attribute recomputed on every merge.
type ValueField struct {
	Field string
	Agg   AggPolicy
}

func ParseAggPolicy(field, s string) (AggPolicy, error) {
	p := AggPolicy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case AggMean, AggMajority, AggMinority, AggMinimum, AggMaximum, AggSum:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q for value field %q", ErrUnknownAggPolicy, s, field)
}

// aggregate combines r's value into m's. Ties in majority/minority keep r's
// value: r is the first contributor.
func aggregate(p AggPolicy, rv, rArea, mv, mArea float64) (float64, error) {
	switch p {
	case AggMean:
		w := rArea + mArea
		if w == 0 {
			return (rv + mv) / 2, nil
		}
		return (rv*rArea + mv*mArea) / w, nil
	case AggMajority:
		if mArea > rArea {
			return mv, nil
		}
		return rv, nil
	case AggMinority:
		if mArea < rArea {
			return mv, nil
		}
		return rv, nil
	case AggMinimum:
		if mv < rv {
			return mv, nil
		}
		return rv, nil
	case AggMaximum:
		if mv > rv {
			return mv, nil
		}
		return rv, nil
	case AggSum:
		return rv + mv, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAggPolicy, string(p))
}
