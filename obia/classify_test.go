package obia_test

import (
	"testing"

	"github.com/wgdzlh/obialib/obia"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyThreshold(t *testing.T) {
	ios := row(t, "slope", 10, 2, 3)
	mustGet(t, ios, 3).Class = "b"
	rules := []obia.Rule{obia.ThresholdRule("slope", obia.OpLT, 5)}

	n, err := ios.Classify("a", rules, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "", mustGet(t, ios, 1).Class)
	assert.Equal(t, "a", mustGet(t, ios, 2).Class)
	assert.Equal(t, "b", mustGet(t, ios, 3).Class)

	n, err = ios.Classify("a", rules, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "a", mustGet(t, ios, 3).Class)
}

func TestClassifyAdjacent(t *testing.T) {
	ios := row(t, "tpi", 0.5, 0, -2)
	require.NoError(t, ios.SetValue(1, "slope", 1))
	require.NoError(t, ios.SetValue(2, "slope", 1))
	require.NoError(t, ios.SetValue(3, "slope", 1))

	n, err := ios.Classify("valley", nil, []obia.Rule{obia.AdjacentRule("tpi", obia.OpLT, -1, nil)}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "valley", mustGet(t, ios, 2).Class)

	// threshold narrows where neighbors are looked up
	ios = row(t, "tpi", 0.5, 0, -2)
	n, err = ios.Classify("ridge",
		[]obia.Rule{obia.ThresholdRule("tpi", obia.OpGT, 0.1)},
		[]obia.Rule{obia.AdjacentRule("tpi", obia.OpLE, 0, nil)}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "ridge", mustGet(t, ios, 1).Class)
	assert.True(t, mustGet(t, ios, 1).HasNeighbors())
	assert.False(t, mustGet(t, ios, 3).HasNeighbors())
}

func TestClassifyErrors(t *testing.T) {
	ios := row(t, "v", 1)
	_, err := ios.Classify("", []obia.Rule{obia.ThresholdRule("v", obia.OpLT, 5)}, nil, false)
	assert.ErrorIs(t, err, obia.ErrEmptyLabel)

	_, err = ios.Classify("a", nil, nil, false)
	assert.ErrorIs(t, err, obia.ErrNoRules)

	_, err = ios.Classify("a", []obia.Rule{obia.ThresholdRule("nope", obia.OpLT, 5)}, nil, false)
	assert.ErrorIs(t, err, obia.ErrMissingField)
	assert.Equal(t, "", mustGet(t, ios, 1).Class)
}
