// Package ruleset reads the JSON file that drives a merge/classify run: the
// value fields and their aggregation policies, the merge parameters and the
// ordered class definitions.
package ruleset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/obia"

	"go.uber.org/zap"
)

const (
	maxFileSize = 1 << 20
	autoOutName = "auto" // out_field value asking for a derived name

	DissolveEachRound = "each_round"
	DissolveAtEnd     = "at_end"
	StatsPerRound     = "per_round"
	StatsFrozen       = "frozen"
	PairWithin        = "within"
	PairThreshold     = "threshold"
)

var (
	ErrMissingThreshold = errors.New("threshold is required")
	ErrUnknownMode      = errors.New("unknown mode")
)

// Document is the on-disk form. Optional scalars are pointers so an omitted
// key falls back to its default.
type Document struct {
	ValueFields []ValueFieldDoc `json:"value_fields"`
	Merge       *MergeDoc       `json:"merge,omitempty"`
	Classes     []ClassDoc      `json:"classes,omitempty"`
}

type ValueFieldDoc struct {
	Field string `json:"field"`
	Agg   string `json:"agg,omitempty"` // default mean
}

type CriterionDoc struct {
	Field     string   `json:"field"`
	Op        string   `json:"op"`
	Threshold *float64 `json:"threshold"`
}

type RuleDoc struct {
	Type      string        `json:"type"`
	Field     string        `json:"field"`
	Op        string        `json:"op"`
	Threshold *float64      `json:"threshold"`
	Source    *CriterionDoc `json:"source,omitempty"`
	OutField  string        `json:"out_field,omitempty"`
}

type PairwiseDoc struct {
	Type      string   `json:"type"`
	Field     string   `json:"field"`
	Range     *float64 `json:"range,omitempty"`
	Op        string   `json:"op,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Self      bool     `json:"self,omitempty"`
}

type MergeDoc struct {
	GrowFields []string       `json:"grow_fields,omitempty"`
	MaxIter    *int           `json:"max_iter,omitempty"` // null: no limit
	UseSeeds   *bool          `json:"use_seeds,omitempty"`
	SeedRules  []RuleDoc      `json:"seed_rules,omitempty"`
	Candidates []CriterionDoc `json:"candidates,omitempty"`
	Pairwise   []PairwiseDoc  `json:"pairwise,omitempty"`
	Dissolve   *string        `json:"dissolve,omitempty"`
	Stats      *string        `json:"stats,omitempty"`
}

type ClassDoc struct {
	Name      string    `json:"name"`
	Overwrite bool      `json:"overwrite,omitempty"`
	Threshold []RuleDoc `json:"threshold,omitempty"`
	Adjacent  []RuleDoc `json:"adjacent,omitempty"`
}

// Class is one labelling step; classes run in file order.
type Class struct {
	Label     string
	Threshold []obia.Rule
	Adjacent  []obia.Rule
	Overwrite bool
}

// Config is a checked ruleset ready to drive ImageObjects.
type Config struct {
	ValueFields []obia.ValueField
	// Merge is nil when the file has no merge section.
	Merge     *obia.MergeOptions
	SeedRules []obia.Rule
	Classes   []Class
}

// Load reads and checks a ruleset file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("ruleset file must have .json extension, got %q", ext)
	}
	fi, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat ruleset file: %w", err)
	}
	if fi.Size() > maxFileSize {
		return nil, fmt.Errorf("ruleset file too large: %d bytes (max %d)", fi.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	log.Info("ruleset loaded", zap.String("path", cleanPath), zap.Int("valueFields", len(cfg.ValueFields)),
		zap.Bool("merge", cfg.Merge != nil), zap.Int("classes", len(cfg.Classes)))
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset JSON: %w", err)
	}
	return doc.Compile()
}

// Compile converts the document into typed options, failing on any unknown
// rule type, operator, policy or mode.
func (d *Document) Compile() (cfg *Config, err error) {
	cfg = &Config{}
	if cfg.ValueFields, err = d.valueFields(); err != nil {
		return nil, err
	}
	if d.Merge != nil {
		if cfg.Merge, cfg.SeedRules, err = d.Merge.compile(); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	cfg.Classes = make([]Class, 0, len(d.Classes))
	for i, cd := range d.Classes {
		var c Class
		if c, err = cd.compile(); err != nil {
			return nil, fmt.Errorf("classes[%d]: %w", i, err)
		}
		cfg.Classes = append(cfg.Classes, c)
	}
	return
}

func (d *Document) valueFields() ([]obia.ValueField, error) {
	vfs := make([]obia.ValueField, 0, len(d.ValueFields))
	for i, vd := range d.ValueFields {
		if vd.Field == "" {
			return nil, fmt.Errorf("value_fields[%d]: %w: empty name", i, obia.ErrMissingField)
		}
		agg := vd.Agg
		if agg == "" {
			agg = string(obia.AggMean)
		}
		p, err := obia.ParseAggPolicy(vd.Field, agg)
		if err != nil {
			return nil, fmt.Errorf("value_fields[%d]: %w", i, err)
		}
		vfs = append(vfs, obia.ValueField{Field: vd.Field, Agg: p})
	}
	return vfs, nil
}

func (cd CriterionDoc) compile() (c obia.Criterion, err error) {
	if cd.Field == "" {
		err = fmt.Errorf("%w: criterion has no field", obia.ErrMissingField)
		return
	}
	if cd.Threshold == nil {
		err = fmt.Errorf("%w: criterion on %q", ErrMissingThreshold, cd.Field)
		return
	}
	if c.Op, err = obia.ParseOp(cd.Op); err != nil {
		return
	}
	c.Field = cd.Field
	c.Threshold = *cd.Threshold
	return
}

func (rd RuleDoc) compile(kind obia.RuleKind) (r obia.Rule, err error) {
	if rd.Type != "" {
		var k obia.RuleKind
		if k, err = obia.ParseRuleKind(rd.Type); err != nil {
			return
		}
		if kind != 0 && k != kind {
			err = fmt.Errorf("%w: %s rule listed under %s", obia.ErrUnsupportedRuleType, k, kind)
			return
		}
		kind = k
	}
	if kind == 0 {
		err = fmt.Errorf("%w: rule on %q has no type", obia.ErrUnsupportedRuleType, rd.Field)
		return
	}
	if rd.Threshold == nil {
		err = fmt.Errorf("%w: rule on %q", ErrMissingThreshold, rd.Field)
		return
	}
	var op obia.Op
	if op, err = obia.ParseOp(rd.Op); err != nil {
		return
	}
	r = obia.Rule{Kind: kind, Field: rd.Field, Op: op, Threshold: *rd.Threshold}
	if rd.Source != nil {
		var src obia.Criterion
		if src, err = rd.Source.compile(); err != nil {
			return
		}
		r.Source = &src
	}
	if err = r.Validate(); err != nil {
		return
	}
	if rd.OutField == autoOutName {
		r.OutField = obia.RuleFieldName(r)
	} else {
		r.OutField = rd.OutField
	}
	return
}

func compileRules(docs []RuleDoc, kind obia.RuleKind, key string) ([]obia.Rule, error) {
	rules := make([]obia.Rule, 0, len(docs))
	for i, rd := range docs {
		r, err := rd.compile(kind)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (pd PairwiseDoc) compile() (pc obia.PairwiseCriterion, err error) {
	if pd.Field == "" {
		err = fmt.Errorf("%w: pairwise criterion has no field", obia.ErrMissingField)
		return
	}
	pc.Field = pd.Field
	switch strings.ToLower(pd.Type) {
	case PairWithin:
		if pd.Range == nil {
			err = fmt.Errorf("%w: within(%s) needs a range", ErrMissingThreshold, pd.Field)
			return
		}
		pc.Kind = obia.PairWithin
		pc.Range = *pd.Range
	case PairThreshold:
		pc.Kind = obia.PairThreshold
		if pc.Op, err = obia.ParseOp(pd.Op); err != nil {
			return
		}
		switch {
		case pd.Self:
			pc.SelfThreshold = true
		case pd.Threshold != nil:
			pc.Threshold = *pd.Threshold
		default:
			err = fmt.Errorf("%w: threshold(%s) needs a threshold or self", ErrMissingThreshold, pd.Field)
		}
	default:
		err = fmt.Errorf("%w: %q, must be one of [%s %s]", obia.ErrUnsupportedPairwise, pd.Type, PairWithin, PairThreshold)
	}
	return
}

func (md *MergeDoc) compile() (opts *obia.MergeOptions, seeds []obia.Rule, err error) {
	o := obia.DefaultMergeOptions()
	o.GrowFields = md.GrowFields
	if md.MaxIter != nil {
		if *md.MaxIter < obia.NoIterLimit {
			err = fmt.Errorf("max_iter must be >= %d, got %d", obia.NoIterLimit, *md.MaxIter)
			return
		}
		o.MaxIterations = *md.MaxIter
	}
	if seeds, err = compileRules(md.SeedRules, 0, "seed_rules"); err != nil {
		return
	}
	// 给出种子规则而未指定use_seeds时默认启用
	o.UseSeeds = len(seeds) > 0
	if md.UseSeeds != nil {
		o.UseSeeds = *md.UseSeeds
	}
	for i, cd := range md.Candidates {
		var c obia.Criterion
		if c, err = cd.compile(); err != nil {
			err = fmt.Errorf("candidates[%d]: %w", i, err)
			return
		}
		o.Candidates = append(o.Candidates, c)
	}
	for i, pd := range md.Pairwise {
		var pc obia.PairwiseCriterion
		if pc, err = pd.compile(); err != nil {
			err = fmt.Errorf("pairwise[%d]: %w", i, err)
			return
		}
		o.Pairwise = append(o.Pairwise, pc)
	}
	if md.Dissolve != nil {
		switch *md.Dissolve {
		case DissolveEachRound:
			o.Dissolve = obia.DissolveEachRound
		case DissolveAtEnd:
			o.Dissolve = obia.DissolveAtEnd
		default:
			err = fmt.Errorf("%w: dissolve %q, must be one of [%s %s]", ErrUnknownMode, *md.Dissolve, DissolveEachRound, DissolveAtEnd)
			return
		}
	}
	if md.Stats != nil {
		switch *md.Stats {
		case StatsPerRound:
			o.Stats = obia.StatsPerRound
		case StatsFrozen:
			o.Stats = obia.StatsFrozen
		default:
			err = fmt.Errorf("%w: stats %q, must be one of [%s %s]", ErrUnknownMode, *md.Stats, StatsPerRound, StatsFrozen)
			return
		}
	}
	opts = &o
	return
}

func (cd ClassDoc) compile() (c Class, err error) {
	if strings.TrimSpace(cd.Name) == "" {
		err = obia.ErrEmptyLabel
		return
	}
	if len(cd.Threshold)+len(cd.Adjacent) == 0 {
		err = fmt.Errorf("%w: class %q", obia.ErrNoRules, cd.Name)
		return
	}
	c = Class{Label: cd.Name, Overwrite: cd.Overwrite}
	if c.Threshold, err = compileRules(cd.Threshold, obia.RuleThreshold, "threshold"); err != nil {
		return
	}
	c.Adjacent, err = compileRules(cd.Adjacent, obia.RuleAdjacent, "adjacent")
	return
}

// Classify runs every class in order and returns how many objects each one
// labelled.
func (cfg *Config) Classify(ios *obia.ImageObjects) (counts map[string]int, err error) {
	counts = make(map[string]int, len(cfg.Classes))
	var n int
	for _, c := range cfg.Classes {
		if n, err = ios.Classify(c.Label, c.Threshold, c.Adjacent, c.Overwrite); err != nil {
			err = fmt.Errorf("class %q: %w", c.Label, err)
			return
		}
		counts[c.Label] += n
		log.Info("ruleset: class applied", zap.String("label", c.Label), zap.Int("objects", n))
	}
	return
}
