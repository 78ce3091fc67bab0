package obialib

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/wgdzlh/obialib/geomtest"
	"github.com/wgdzlh/obialib/obia"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(t *testing.T, g *GdalToolbox, x0, y0, x1, y1 float64) *OgrGeometry {
	t.Helper()
	wkt := fmt.Sprintf("POLYGON((%[1]f %[2]f,%[1]f %[4]f,%[3]f %[4]f,%[3]f %[2]f,%[1]f %[2]f))", x0, y0, x1, y1)
	og, err := g.GeometryFromWKT(wkt, UNIVERSAL_SRID)
	require.NoError(t, err)
	return og
}

func TestOgrGeometryTopology(t *testing.T) {
	g := NewGdalToolbox()
	a := square(t, g, 0, 0, 1, 1)
	defer a.Destroy()
	b := square(t, g, 1, 0, 2, 1)
	defer b.Destroy()
	c := square(t, g, 5, 5, 6, 6)
	defer c.Destroy()

	assert.InDelta(t, 1.0, a.Area(), 1e-9)
	assert.InDelta(t, 4.0, a.Perimeter(), 1e-9)
	assert.True(t, a.Touches(b))
	assert.False(t, a.Touches(c))
	assert.True(t, a.Disjoint(c))
	assert.False(t, a.Overlaps(b))

	ctr, err := a.Centroid()
	require.NoError(t, err)
	defer ctr.Destroy()
	assert.True(t, a.Contains(ctr))
	assert.True(t, ctr.Within(a))

	u, err := a.Union(b)
	require.NoError(t, err)
	defer u.Destroy()
	assert.InDelta(t, 2.0, u.Area(), 1e-9)
	assert.InDelta(t, 6.0, u.Perimeter(), 1e-9)

	_, err = a.Union(geomtest.Rect(0, 0, 1, 1))
	assert.ErrorIs(t, err, obia.ErrForeignGeometry)
	assert.False(t, a.Touches(geomtest.Rect(1, 0, 1, 1)))
}

func TestMergeOgrObjects(t *testing.T) {
	g := NewGdalToolbox()
	vals := []float64{1, 1.2, 9}
	objs := make([]*obia.Object, len(vals))
	for i, v := range vals {
		o := obia.NewObject(int64(i+1), square(t, g, float64(i), 0, float64(i+1), 1))
		o.Values["v"] = v
		objs[i] = o
	}
	ios, err := obia.NewImageObjects(objs, []obia.ValueField{{Field: "v", Agg: obia.AggMean}})
	require.NoError(t, err)

	opts := obia.DefaultMergeOptions()
	opts.Candidates = []obia.Criterion{{Field: "v", Op: obia.OpLT, Threshold: 5}}
	sum, err := ios.PseudoMerge(opts)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Merges)
	require.Equal(t, []obia.ObjectID{3}, ios.IDs())
	o, _ := ios.Get(3)
	assert.InDelta(t, 3.0, o.Geom.Area(), 1e-9)
	assert.Equal(t, 3.0, o.Area())
}

func TestImageObjectsShapefileRoundTrip(t *testing.T) {
	objs := []*obia.Object{
		obia.NewObject(11, geomtest.Rect(0, 0, 1, 1)),
		obia.NewObject(12, geomtest.Rect(1, 0, 2, 1)),
	}
	objs[0].Values["v"] = 0.25
	objs[1].Values["v"] = 3
	objs[0].Texts["name"] = "水体"
	ios, err := obia.NewImageObjects(objs, []obia.ValueField{{Field: "v", Agg: obia.AggMean}})
	require.NoError(t, err)
	require.NoError(t, ios.ComputeNeighbors())
	_, err = ios.Classify("water", []obia.Rule{obia.ThresholdRule("v", obia.OpLT, 1)}, nil, false)
	require.NoError(t, err)

	g := NewGdalToolbox(t.TempDir())
	shp := filepath.Join(t.TempDir(), "objects.shp")
	require.NoError(t, g.WriteImageObjects(shp, UNIVERSAL_SRID, ios))

	back, srid, err := g.LoadImageObjects(shp, LoadOptions{
		IDField:       SHP_FIELD_ID,
		ValueFields:   []obia.ValueField{{Field: "v", Agg: obia.AggMean}},
		KeepNeighbors: true,
	})
	require.NoError(t, err)
	assert.Equal(t, UNIVERSAL_SRID, srid)
	assert.Equal(t, []obia.ObjectID{11, 12}, back.IDs())

	a, _ := back.Get(11)
	assert.Equal(t, "water", a.Class)
	assert.Equal(t, "水体", a.Texts["name"])
	assert.Equal(t, []obia.ObjectID{12}, a.Neighbors())
	v, err := back.GetValue(12, "v")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
	b, _ := back.Get(12)
	assert.InDelta(t, 2.0, b.Geom.Area(), 1e-9)
	assert.Equal(t, "", b.Class)

	_, _, err = g.LoadImageObjects(shp, LoadOptions{IDField: "nope"})
	assert.Error(t, err)
}

func TestShapefileRewriteKeepsColumns(t *testing.T) {
	objs := []*obia.Object{
		obia.NewObject(1, geomtest.Rect(0, 0, 1, 1)),
		obia.NewObject(2, geomtest.Rect(1, 0, 1, 1)),
	}
	objs[0].Values["v"] = 1
	objs[1].Values["v"] = 2
	objs[1].MergeCount = 2
	ios, err := obia.NewImageObjects(objs, []obia.ValueField{{Field: "v", Agg: obia.AggMean}})
	require.NoError(t, err)

	g := NewGdalToolbox(t.TempDir())
	dir := t.TempDir()
	for i, opts := range []LoadOptions{{IDField: SHP_FIELD_ID}, {}} {
		shp := filepath.Join(dir, fmt.Sprintf("gen%d.shp", i))
		require.NoError(t, g.WriteImageObjects(shp, UNIVERSAL_SRID, ios))
		ios, _, err = g.LoadImageObjects(shp, opts)
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"v", obia.AreaField}, ios.Fields(), "generation %d", i)
		var counts []int
		for _, o := range ios.Objects() {
			counts = append(counts, o.MergeCount)
		}
		assert.Equal(t, []int{0, 2}, counts, "generation %d", i)
	}
}

func TestLoadRejectsNonPolygons(t *testing.T) {
	ios, err := obia.NewImageObjects([]*obia.Object{obia.NewObject(1, geomtest.Point{X: 0.5, Y: 0.5})}, nil)
	require.NoError(t, err)
	g := NewGdalToolbox(t.TempDir())
	shp := filepath.Join(t.TempDir(), "points.shp")
	require.NoError(t, g.WriteImageObjects(shp, UNIVERSAL_SRID, ios))

	_, _, err = g.LoadImageObjects(shp, LoadOptions{})
	assert.ErrorIs(t, err, ErrGdalWrongGeoType)
}

func TestSimplifyImageObjects(t *testing.T) {
	g := NewGdalToolbox()
	og, err := g.GeometryFromWKT("POLYGON((0 0,0.5 0.001,1 0,1 1,0 1,0 0))", UNIVERSAL_SRID)
	require.NoError(t, err)
	ios, err := obia.NewImageObjects([]*obia.Object{obia.NewObject(1, og)}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, g.SimplifyImageObjects(ios, 0))
	assert.Equal(t, 1, g.SimplifyImageObjects(ios, 0.01))
	o, _ := ios.Get(1)
	simp, ok := o.Geom.(*OgrGeometry)
	require.True(t, ok)
	assert.Equal(t, 5, simp.Gdal().Geometry(0).PointCount())
}
