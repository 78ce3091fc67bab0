package obia_test

import (
	"testing"

	"github.com/wgdzlh/obialib/geomtest"
	"github.com/wgdzlh/obialib/obia"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sortIDs = cmpopts.SortSlices(func(a, b obia.ObjectID) bool { return a < b })

func TestComputeNeighbors(t *testing.T) {
	ios := grid(t)
	require.NoError(t, ios.ComputeNeighbors())

	for _, o := range ios.Objects() {
		require.True(t, o.HasNeighbors())
		if diff := cmp.Diff(touching(ios, o), o.Neighbors(), sortIDs, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("neighbors of %d (-touching +got):\n%s", o.ID, diff)
		}
		for _, n := range o.Neighbors() {
			assert.Contains(t, mustGet(t, ios, n).Neighbors(), o.ID, "symmetric %d-%d", o.ID, n)
		}
	}
	assert.Equal(t, []obia.ObjectID{2, 4, 5}, mustGet(t, ios, 1).Neighbors())

	before := map[obia.ObjectID][]obia.ObjectID{}
	for _, o := range ios.Objects() {
		before[o.ID] = o.Neighbors()
	}
	require.NoError(t, ios.ComputeNeighbors())
	for _, o := range ios.Objects() {
		if diff := cmp.Diff(before[o.ID], o.Neighbors(), sortIDs); diff != "" {
			t.Errorf("recompute changed neighbors of %d:\n%s", o.ID, diff)
		}
	}
}

func TestComputeNeighborsSubset(t *testing.T) {
	objs := []*obia.Object{
		obia.NewObject(1, geomtest.Rect(0, 0, 1, 1)),
		obia.NewObject(2, geomtest.Rect(1, 0, 1, 1)),
		obia.NewObject(3, geomtest.Rect(9, 9, 1, 1)),
	}
	ios, err := obia.NewImageObjects(objs, nil)
	require.NoError(t, err)

	require.NoError(t, ios.ComputeNeighbors(1, 3))
	assert.Equal(t, []obia.ObjectID{2}, objs[0].Neighbors())
	assert.False(t, objs[1].HasNeighbors())
	assert.True(t, objs[2].HasNeighbors())
	assert.Empty(t, objs[2].Neighbors())

	assert.ErrorIs(t, ios.ComputeNeighbors(42), obia.ErrUnknownObject)
}

func TestReplaceNeighbor(t *testing.T) {
	ios := row(t, "v", 1, 2, 3)
	require.NoError(t, ios.ComputeNeighbors())
	mustGet(t, ios, 3).MergePath = []obia.ObjectID{2}

	ios.ReplaceNeighbor(2, 1, true)
	assert.Empty(t, mustGet(t, ios, 1).Neighbors(), "never its own neighbor")
	assert.Equal(t, []obia.ObjectID{1}, mustGet(t, ios, 3).Neighbors())
	assert.Equal(t, []obia.ObjectID{1, 3}, mustGet(t, ios, 2).Neighbors())
	assert.Equal(t, []obia.ObjectID{1}, mustGet(t, ios, 3).MergePath)

	// no duplicate when the new id is already listed
	ios = row(t, "v", 1, 2, 3)
	require.NoError(t, ios.ComputeNeighbors())
	ios.ReplaceNeighbor(1, 3, false)
	assert.Equal(t, []obia.ObjectID{3}, mustGet(t, ios, 2).Neighbors())
}

func TestNeighborValues(t *testing.T) {
	ios := row(t, "tpi", 0.5, 0, -2)

	require.NoError(t, ios.ComputeNeighborValues("tpi", nil, false))
	_, ok := ios.NeighborValues(2, "tpi")
	assert.False(t, ok, "no neighbor list yet")

	require.NoError(t, ios.ComputeNeighborValues("tpi", []obia.ObjectID{2}, true))
	nv, ok := ios.NeighborValues(2, "tpi")
	require.True(t, ok)
	assert.Equal(t, []obia.NeighborValue{{ID: 1, Value: 0.5}, {ID: 3, Value: -2}}, nv)
	assert.Contains(t, ios.NeighborValueFields(), "tpi")

	ios.ReplaceNeighborValue("tpi", 3, 1, 7)
	nv, _ = ios.NeighborValues(2, "tpi")
	assert.Equal(t, []obia.NeighborValue{{ID: 1, Value: 7}}, nv)

	assert.ErrorIs(t, ios.ComputeNeighborValues("nope", nil, true), obia.ErrMissingField)
}
