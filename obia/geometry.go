package obia

import (
	"fmt"
	"strings"
)

// Geometry is the polygon capability objects are built on. Implementations
// only need to interoperate with themselves; passing a foreign Geometry to
// Union should fail with ErrForeignGeometry and predicates should report false.
type Geometry interface {
	Area() float64
	// Perimeter is the length of the geometry's boundary.
	Perimeter() float64
	Centroid() (Geometry, error)

	Touches(other Geometry) bool
	Contains(other Geometry) bool
	Within(other Geometry) bool
	Intersects(other Geometry) bool
	Overlaps(other Geometry) bool
	Disjoint(other Geometry) bool

	// Union returns a new geometry; neither operand is modified.
	Union(other Geometry) (Geometry, error)
	WKB() ([]byte, error)
	// Destroy releases resources held outside the Go heap, if any.
	Destroy()
}

type Predicate uint8

const (
	PredContains Predicate = iota + 1
	PredWithin
	PredIntersects
	PredDisjoint
	PredOverlaps
	PredTouches
)

var predicateNames = map[Predicate]string{
	PredContains:   "contains",
	PredWithin:     "within",
	PredIntersects: "intersects",
	PredDisjoint:   "disjoint",
	PredOverlaps:   "overlaps",
	PredTouches:    "touches",
}

func (p Predicate) String() string {
	if n, ok := predicateNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Predicate(%d)", uint8(p))
}

func ParsePredicate(s string) (Predicate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, n := range predicateNames {
		if n == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedPredicate, s)
}

// Test evaluates a <predicate> b.
func (p Predicate) Test(a, b Geometry) (bool, error) {
	switch p {
	case PredContains:
		return a.Contains(b), nil
	case PredWithin:
		return a.Within(b), nil
	case PredIntersects:
		return a.Intersects(b), nil
	case PredDisjoint:
		return a.Disjoint(b), nil
	case PredOverlaps:
		return a.Overlaps(b), nil
	case PredTouches:
		return a.Touches(b), nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupportedPredicate, p)
}
