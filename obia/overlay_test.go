package obia_test

import (
	"testing"

	"github.com/wgdzlh/obialib/geomtest"
	"github.com/wgdzlh/obialib/obia"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayAny(t *testing.T) {
	objs := []*obia.Object{
		obia.NewObject(1, geomtest.Rect(0, 0, 2, 2)),
		obia.NewObject(2, geomtest.Rect(5, 5, 1, 1)),
	}
	ios, err := obia.NewImageObjects(objs, nil)
	require.NoError(t, err)

	inner := obia.NewObject(10, geomtest.Rect(0, 0, 1, 1))
	inner.Values["v"] = 3
	beside := obia.NewObject(11, geomtest.Rect(2, 0, 1, 1))
	beside.Values["v"] = 8
	others := []*obia.Object{inner, beside}

	m, err := ios.OverlayAny(others, obia.OverlayOptions{Predicate: obia.PredContains, Centroid: true, OutField: "has_inner"})
	require.NoError(t, err)
	assert.Equal(t, obia.Mask{1: true, 2: false}, m)
	v, _ := ios.GetValue(1, "has_inner")
	assert.Equal(t, 1.0, v)

	m, err = ios.OverlayAny(others, obia.OverlayOptions{
		Predicate: obia.PredContains, Centroid: true,
		Filter: &obia.Criterion{Field: "v", Op: obia.OpGT, Threshold: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, obia.Mask{1: false, 2: false}, m)

	m, err = ios.OverlayAny(others, obia.OverlayOptions{Predicate: obia.PredTouches})
	require.NoError(t, err)
	assert.Equal(t, obia.Mask{1: true, 2: false}, m)

	m, err = ios.OverlayAny(others, obia.OverlayOptions{Predicate: obia.PredDisjoint})
	require.NoError(t, err)
	assert.Equal(t, obia.Mask{1: false, 2: true}, m)

	_, err = ios.OverlayAny(others, obia.OverlayOptions{})
	assert.ErrorIs(t, err, obia.ErrUnsupportedPredicate)
}

func TestParsePredicate(t *testing.T) {
	p, err := obia.ParsePredicate(" Touches")
	require.NoError(t, err)
	assert.Equal(t, obia.PredTouches, p)
	assert.Equal(t, "touches", p.String())

	_, err = obia.ParsePredicate("crosses")
	assert.ErrorIs(t, err, obia.ErrUnsupportedPredicate)
}
