package ruleset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wgdzlh/obialib/geomtest"
	"github.com/wgdzlh/obialib/obia"
	"github.com/wgdzlh/obialib/ruleset"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "value_fields": [
    {"field": "slope"},
    {"field": "tpi", "agg": "maximum"},
    {"field": "dem", "agg": "sum"}
  ],
  "merge": {
    "grow_fields": ["slope"],
    "max_iter": 3,
    "seed_rules": [{"type": "threshold", "field": "slope", "op": "<", "threshold": 2}],
    "candidates": [{"field": "slope", "op": "lt", "threshold": 8}],
    "pairwise": [
      {"type": "within", "field": "tpi", "range": 0.5},
      {"type": "threshold", "field": "slope", "op": "<=", "self": true}
    ],
    "dissolve": "at_end",
    "stats": "frozen"
  },
  "classes": [
    {"name": "plain", "threshold": [{"field": "slope", "op": "<", "threshold": 2.5, "out_field": "auto"}]},
    {"name": "valley", "overwrite": true,
     "adjacent": [{"field": "tpi", "op": "gt", "threshold": 1, "source": {"field": "tpi", "op": "<", "threshold": 0}}]}
  ]
}`

func TestParse(t *testing.T) {
	cfg, err := ruleset.Parse([]byte(sample))
	require.NoError(t, err)

	want := &ruleset.Config{
		ValueFields: []obia.ValueField{
			{Field: "slope", Agg: obia.AggMean},
			{Field: "tpi", Agg: obia.AggMaximum},
			{Field: "dem", Agg: obia.AggSum},
		},
		Merge: &obia.MergeOptions{
			Candidates: []obia.Criterion{{Field: "slope", Op: obia.OpLT, Threshold: 8}},
			Pairwise: []obia.PairwiseCriterion{
				{Kind: obia.PairWithin, Field: "tpi", Range: 0.5},
				{Kind: obia.PairThreshold, Field: "slope", Op: obia.OpLE, SelfThreshold: true},
			},
			GrowFields:    []string{"slope"},
			UseSeeds:      true,
			MaxIterations: 3,
			Dissolve:      obia.DissolveAtEnd,
			Stats:         obia.StatsFrozen,
		},
		SeedRules: []obia.Rule{obia.ThresholdRule("slope", obia.OpLT, 2)},
		Classes: []ruleset.Class{
			{
				Label:     "plain",
				Threshold: []obia.Rule{{Kind: obia.RuleThreshold, Field: "slope", Op: obia.OpLT, Threshold: 2.5, OutField: "slope_lt2x5"}},
			},
			{
				Label: "valley",
				Adjacent: []obia.Rule{obia.AdjacentRule("tpi", obia.OpGT, 1,
					&obia.SourceFilter{Field: "tpi", Op: obia.OpLT, Threshold: 0})},
				Overwrite: true,
			},
		},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := ruleset.Parse([]byte(`{"value_fields": [{"field": "v"}], "merge": {}}`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Merge)
	assert.Equal(t, obia.NoIterLimit, cfg.Merge.MaxIterations)
	assert.False(t, cfg.Merge.UseSeeds)
	assert.Equal(t, obia.DissolveEachRound, cfg.Merge.Dissolve)
	assert.Equal(t, obia.StatsPerRound, cfg.Merge.Stats)
	assert.Empty(t, cfg.Classes)

	cfg, err = ruleset.Parse([]byte(`{"value_fields": [{"field": "v"}],
		"merge": {"use_seeds": false, "seed_rules": [{"type": "threshold", "field": "v", "op": ">", "threshold": 1}]}}`))
	require.NoError(t, err)
	assert.False(t, cfg.Merge.UseSeeds)
	assert.Len(t, cfg.SeedRules, 1)

	cfg, err = ruleset.Parse([]byte(`{"value_fields": []}`))
	require.NoError(t, err)
	assert.Nil(t, cfg.Merge)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"agg", `{"value_fields": [{"field": "v", "agg": "median"}]}`, obia.ErrUnknownAggPolicy},
		{"rule type", `{"value_fields": [], "classes": [{"name": "a", "threshold": [{"type": "overlay", "field": "v", "op": "<", "threshold": 1}]}]}`, obia.ErrUnsupportedRuleType},
		{"misplaced rule", `{"value_fields": [], "classes": [{"name": "a", "threshold": [{"type": "adjacent", "field": "v", "op": "<", "threshold": 1}]}]}`, obia.ErrUnsupportedRuleType},
		{"op", `{"value_fields": [], "classes": [{"name": "a", "threshold": [{"field": "v", "op": "~", "threshold": 1}]}]}`, obia.ErrUnsupportedOp},
		{"threshold", `{"value_fields": [], "classes": [{"name": "a", "threshold": [{"field": "v", "op": "<"}]}]}`, ruleset.ErrMissingThreshold},
		{"label", `{"value_fields": [], "classes": [{"name": " ", "threshold": [{"field": "v", "op": "<", "threshold": 1}]}]}`, obia.ErrEmptyLabel},
		{"no rules", `{"value_fields": [], "classes": [{"name": "a"}]}`, obia.ErrNoRules},
		{"pairwise", `{"value_fields": [], "merge": {"pairwise": [{"type": "near", "field": "v"}]}}`, obia.ErrUnsupportedPairwise},
		{"within range", `{"value_fields": [], "merge": {"pairwise": [{"type": "within", "field": "v"}]}}`, ruleset.ErrMissingThreshold},
		{"dissolve", `{"value_fields": [], "merge": {"dissolve": "never"}}`, ruleset.ErrUnknownMode},
		{"stats", `{"value_fields": [], "merge": {"stats": "sometimes"}}`, ruleset.ErrUnknownMode},
		{"seed without type", `{"value_fields": [], "merge": {"seed_rules": [{"field": "v", "op": "<", "threshold": 1}]}}`, obia.ErrUnsupportedRuleType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ruleset.Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := ruleset.Parse([]byte(`{"value_fields": [], "merge": {"max_iter": -2}}`))
	assert.Error(t, err)
	_, err = ruleset.Parse([]byte(`{"value_fields": [], "colours": []}`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := ruleset.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Classes, 2)

	txt := filepath.Join(dir, "rules.txt")
	require.NoError(t, os.WriteFile(txt, []byte(sample), 0o644))
	_, err = ruleset.Load(txt)
	assert.Error(t, err)

	_, err = ruleset.Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	cfg, err := ruleset.Parse([]byte(`{
  "value_fields": [{"field": "slope"}],
  "classes": [
    {"name": "flat", "threshold": [{"field": "slope", "op": "<", "threshold": 3}]},
    {"name": "steep", "threshold": [{"field": "slope", "op": ">=", "threshold": 3}]},
    {"name": "foot", "overwrite": true,
     "threshold": [{"field": "slope", "op": "<", "threshold": 3}],
     "adjacent": [{"field": "slope", "op": ">", "threshold": 10}]}
  ]
}`))
	require.NoError(t, err)

	vals := []float64{1, 2, 20}
	objs := make([]*obia.Object, len(vals))
	for i, v := range vals {
		objs[i] = obia.NewObject(int64(i+1), geomtest.Rect(i, 0, 1, 1))
		objs[i].Values["slope"] = v
	}
	ios, err := obia.NewImageObjects(objs, cfg.ValueFields)
	require.NoError(t, err)

	counts, err := cfg.Classify(ios)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"flat": 2, "steep": 1, "foot": 1}, counts)

	labels := make(map[obia.ObjectID]string)
	for _, o := range ios.Objects() {
		labels[o.ID] = o.Class
	}
	assert.Equal(t, map[obia.ObjectID]string{1: "flat", 2: "foot", 3: "steep"}, labels)
}
