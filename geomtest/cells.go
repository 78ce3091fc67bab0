// Package geomtest provides a grid-cell polygon geometry implementing
// obia.Geometry without GDAL. A Cells value is a set of axis aligned square
// cells of one size; topology follows the usual DE-9IM reading of the union
// of those squares.
package geomtest

import (
	"fmt"
	"math"
	"sort"

	"github.com/wgdzlh/obialib/obia"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

type cell struct{ x, y int }

type Cells struct {
	size  float64
	cells map[cell]struct{}
}

// NewCells builds a geometry from cell coordinates, each cell spanning
// [x*size, (x+1)*size) x [y*size, (y+1)*size).
func NewCells(size float64, xy ...[2]int) *Cells {
	c := &Cells{size: size, cells: make(map[cell]struct{}, len(xy))}
	for _, p := range xy {
		c.cells[cell{p[0], p[1]}] = struct{}{}
	}
	return c
}

// Rect is a w*h block of unit cells with its lower left cell at (x, y).
func Rect(x, y, w, h int) *Cells {
	return RectSized(1, x, y, w, h)
}

func RectSized(size float64, x, y, w, h int) *Cells {
	xy := make([][2]int, 0, w*h)
	for i := x; i < x+w; i++ {
		for j := y; j < y+h; j++ {
			xy = append(xy, [2]int{i, j})
		}
	}
	return NewCells(size, xy...)
}

func (c *Cells) Len() int {
	return len(c.cells)
}

func (c *Cells) Has(x, y int) bool {
	_, ok := c.cells[cell{x, y}]
	return ok
}

func (c *Cells) sorted() []cell {
	out := make([]cell, 0, len(c.cells))
	for k := range c.cells {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].x != out[j].x {
			return out[i].x < out[j].x
		}
		return out[i].y < out[j].y
	})
	return out
}

func (c *Cells) Area() float64 {
	return float64(len(c.cells)) * c.size * c.size
}

// Perimeter counts cell edges not shared with another cell of the set.
func (c *Cells) Perimeter() float64 {
	edges := 0
	for k := range c.cells {
		for _, d := range [4]cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			if !c.Has(k.x+d.x, k.y+d.y) {
				edges++
			}
		}
	}
	return float64(edges) * c.size
}

func (c *Cells) Centroid() (obia.Geometry, error) {
	if len(c.cells) == 0 {
		return nil, fmt.Errorf("centroid of empty geometry")
	}
	var sx, sy float64
	for k := range c.cells {
		sx += (float64(k.x) + 0.5) * c.size
		sy += (float64(k.y) + 0.5) * c.size
	}
	n := float64(len(c.cells))
	return Point{X: sx / n, Y: sy / n}, nil
}

func (c *Cells) shares(o *Cells) bool {
	a, b := c, o
	if len(b.cells) < len(a.cells) {
		a, b = b, a
	}
	for k := range a.cells {
		if _, ok := b.cells[k]; ok {
			return true
		}
	}
	return false
}

// adjacent: some cell of o is one of the 8 cells around a cell of c.
func (c *Cells) adjacent(o *Cells) bool {
	for k := range c.cells {
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				if (dx != 0 || dy != 0) && o.Has(k.x+dx, k.y+dy) {
					return true
				}
			}
		}
	}
	return false
}

func (c *Cells) subsetOf(o *Cells) bool {
	for k := range c.cells {
		if !o.Has(k.x, k.y) {
			return false
		}
	}
	return true
}

func (c *Cells) compatible(o *Cells) bool {
	return o != nil && c.size == o.size && len(c.cells) > 0 && len(o.cells) > 0
}

// coverIdx lists the cell indices whose closed square contains coordinate v.
func (c *Cells) coverIdx(v float64) []int {
	f := v / c.size
	i := int(math.Floor(f))
	if f == math.Floor(f) {
		return []int{i - 1, i}
	}
	return []int{i}
}

func (c *Cells) locate(p Point) (inClosure, inInterior bool) {
	inInterior = true
	for _, x := range c.coverIdx(p.X) {
		for _, y := range c.coverIdx(p.Y) {
			if c.Has(x, y) {
				inClosure = true
			} else {
				inInterior = false
			}
		}
	}
	inInterior = inInterior && inClosure
	return
}

func (c *Cells) Touches(other obia.Geometry) bool {
	switch o := other.(type) {
	case *Cells:
		return c.compatible(o) && !c.shares(o) && c.adjacent(o)
	case Point:
		cl, in := c.locate(o)
		return cl && !in
	}
	return false
}

func (c *Cells) Contains(other obia.Geometry) bool {
	switch o := other.(type) {
	case *Cells:
		return c.compatible(o) && o.subsetOf(c)
	case Point:
		_, in := c.locate(o)
		return in
	}
	return false
}

func (c *Cells) Within(other obia.Geometry) bool {
	if o, ok := other.(*Cells); ok {
		return c.compatible(o) && c.subsetOf(o)
	}
	return false
}

func (c *Cells) Intersects(other obia.Geometry) bool {
	switch o := other.(type) {
	case *Cells:
		return c.compatible(o) && (c.shares(o) || c.adjacent(o))
	case Point:
		cl, _ := c.locate(o)
		return cl
	}
	return false
}

func (c *Cells) Overlaps(other obia.Geometry) bool {
	if o, ok := other.(*Cells); ok {
		return c.compatible(o) && c.shares(o) && !c.subsetOf(o) && !o.subsetOf(c)
	}
	return false
}

func (c *Cells) Disjoint(other obia.Geometry) bool {
	switch other.(type) {
	case *Cells, Point:
		return !c.Intersects(other)
	}
	return false
}

func (c *Cells) Union(other obia.Geometry) (obia.Geometry, error) {
	o, ok := other.(*Cells)
	if !ok || o == nil {
		return nil, obia.ErrForeignGeometry
	}
	if c.size != o.size {
		return nil, fmt.Errorf("%w: cell size %g vs %g", obia.ErrForeignGeometry, c.size, o.size)
	}
	u := &Cells{size: c.size, cells: make(map[cell]struct{}, len(c.cells)+len(o.cells))}
	for k := range c.cells {
		u.cells[k] = struct{}{}
	}
	for k := range o.cells {
		u.cells[k] = struct{}{}
	}
	return u, nil
}

// Orb renders the cells as a multipolygon of squares.
func (c *Cells) Orb() orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(c.cells))
	for _, k := range c.sorted() {
		x0, y0 := float64(k.x)*c.size, float64(k.y)*c.size
		x1, y1 := x0+c.size, y0+c.size
		mp = append(mp, orb.Polygon{orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}})
	}
	return mp
}

func (c *Cells) WKB() ([]byte, error) {
	return wkb.Marshal(c.Orb())
}

func (c *Cells) Destroy() {}

// Point is a centroid-style point geometry.
type Point struct {
	X, Y float64
}

func (p Point) Area() float64      { return 0 }
func (p Point) Perimeter() float64 { return 0 }

func (p Point) Centroid() (obia.Geometry, error) {
	return p, nil
}

func (p Point) Touches(other obia.Geometry) bool {
	if c, ok := other.(*Cells); ok {
		return c.Touches(p)
	}
	return false
}

func (p Point) Contains(other obia.Geometry) bool {
	q, ok := other.(Point)
	return ok && q == p
}

func (p Point) Within(other obia.Geometry) bool {
	switch o := other.(type) {
	case *Cells:
		return o.Contains(p)
	case Point:
		return o == p
	}
	return false
}

func (p Point) Intersects(other obia.Geometry) bool {
	switch o := other.(type) {
	case *Cells:
		return o.Intersects(p)
	case Point:
		return o == p
	}
	return false
}

func (p Point) Overlaps(obia.Geometry) bool { return false }

func (p Point) Disjoint(other obia.Geometry) bool {
	switch other.(type) {
	case *Cells, Point:
		return !p.Intersects(other)
	}
	return false
}

func (p Point) Union(obia.Geometry) (obia.Geometry, error) {
	return nil, obia.ErrForeignGeometry
}

func (p Point) WKB() ([]byte, error) {
	return wkb.Marshal(orb.Point{p.X, p.Y})
}

func (p Point) Destroy() {}
