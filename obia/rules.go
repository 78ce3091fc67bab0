package obia

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/utils"

	"go.uber.org/zap"
)

// Op is a comparison operator.
type Op uint8

const (
	OpLT Op = iota + 1
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
)

var opSymbols = map[Op]string{OpLT: "<", OpLE: "<=", OpGT: ">", OpGE: ">=", OpEQ: "==", OpNE: "!="}

var opNames = map[Op]string{OpLT: "lt", OpLE: "le", OpGT: "gt", OpGE: "ge", OpEQ: "eq", OpNE: "ne"}

func (op Op) String() string {
	if s, ok := opSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// Name is the short mnemonic, e.g. "lt".
func (op Op) Name() string {
	return opNames[op]
}

func (op Op) Valid() bool {
	_, ok := opSymbols[op]
	return ok
}

// ParseOp accepts both symbols ("<=") and mnemonics ("le").
func ParseOp(s string) (Op, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "=" {
		s = "=="
	}
	for op, sym := range opSymbols {
		if s == sym || s == opNames[op] {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedOp, s)
}

// Compare reports a <op> b. Unknown operators compare false.
func (op Op) Compare(a, b float64) bool {
	switch op {
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	}
	return false
}

type RuleKind uint8

const (
	RuleThreshold RuleKind = iota + 1
	RuleAdjacent
)

func (k RuleKind) String() string {
	switch k {
	case RuleThreshold:
		return "threshold"
	case RuleAdjacent:
		return "adjacent"
	}
	return fmt.Sprintf("RuleKind(%d)", uint8(k))
}

func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "threshold":
		return RuleThreshold, nil
	case "adjacent":
		return RuleAdjacent, nil
	}
	return 0, fmt.Errorf("%w: %q, must be one of [threshold adjacent]", ErrUnsupportedRuleType, s)
}

// Criterion is a (field, op, threshold) test on one object's own value.
type Criterion struct {
	Field     string
	Op        Op
	Threshold float64
}

func (c Criterion) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, utils.FormatFloat(c.Threshold))
}

func (c Criterion) validate() error {
	if !c.Op.Valid() {
		return fmt.Errorf("%w: %d in %q", ErrUnsupportedOp, uint8(c.Op), c.Field)
	}
	return nil
}

// SourceFilter gates an adjacency rule on the object's own value.
type SourceFilter = Criterion

// Rule is either a threshold rule on the object's own field or an adjacency
// rule that holds when any neighbor's field satisfies the comparison.
type Rule struct {
	Kind      RuleKind
	Field     string
	Op        Op
	Threshold float64
	Source    *SourceFilter // adjacency only
	OutField  string        // optional 1/0 output field
}

func ThresholdRule(field string, op Op, threshold float64) Rule {
	return Rule{Kind: RuleThreshold, Field: field, Op: op, Threshold: threshold}
}

func AdjacentRule(field string, op Op, threshold float64, src *SourceFilter) Rule {
	return Rule{Kind: RuleAdjacent, Field: field, Op: op, Threshold: threshold, Source: src}
}

func (r Rule) String() string {
	s := fmt.Sprintf("%s(%s %s %s)", r.Kind, r.Field, r.Op, utils.FormatFloat(r.Threshold))
	if r.Source != nil {
		s += " where " + r.Source.String()
	}
	return s
}

func (r Rule) Validate() error {
	switch r.Kind {
	case RuleThreshold:
		if r.Source != nil {
			return fmt.Errorf("%w: source filter on threshold rule %s", ErrUnsupportedRuleType, r)
		}
	case RuleAdjacent:
		if r.Source != nil {
			if err := r.Source.validate(); err != nil {
				return fmt.Errorf("rule %s: %w", r, err)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedRuleType, r.Kind)
	}
	if !r.Op.Valid() {
		return fmt.Errorf("%w: %d in rule on %q", ErrUnsupportedOp, uint8(r.Op), r.Field)
	}
	if r.Field == "" {
		return fmt.Errorf("%w: rule %s has no field", ErrMissingField, r)
	}
	return nil
}

// RuleFieldName derives an out field name such as "slope_gt8" or "adj_tpi_lt-1".
func RuleFieldName(r Rule) string {
	fn := fmt.Sprintf("%s_%s%s", r.Field, r.Op.Name(), strings.ReplaceAll(utils.FormatFloat(r.Threshold), ".", "x"))
	if r.Kind == RuleAdjacent {
		fn = "adj_" + fn
	}
	return fn
}

// Mask holds per-object rule results. An absent id has no valid result.
type Mask map[ObjectID]bool

func (m Mask) Count() (n int) {
	for _, v := range m {
		if v {
			n++
		}
	}
	return
}

// True lists ids whose result is true, ascending.
func (m Mask) True() []ObjectID {
	ids := make([]ObjectID, 0, len(m))
	for id, v := range m {
		if v {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ApplyRule evaluates one rule on every live object.
func (ios *ImageObjects) ApplyRule(r Rule) (m Mask, err error) {
	if err = r.Validate(); err != nil {
		return
	}
	if err = ios.requireField(r.Field); err != nil {
		err = fmt.Errorf("rule %s: %w", r, err)
		return
	}
	switch r.Kind {
	case RuleThreshold:
		m = ios.threshold(Criterion{Field: r.Field, Op: r.Op, Threshold: r.Threshold})
	case RuleAdjacent:
		if m, err = ios.adjacentTo(r); err != nil {
			return
		}
	}
	if r.OutField != "" {
		ios.storeMask(r.OutField, m)
		ios.addRuleField(r.OutField)
	}
	return
}

func (ios *ImageObjects) threshold(c Criterion) Mask {
	m := make(Mask, len(ios.order))
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		if v, ok := o.Values[c.Field]; ok {
			m[o.ID] = c.Op.Compare(v, c.Threshold)
		}
	}
	return m
}

func (ios *ImageObjects) adjacentTo(r Rule) (m Mask, err error) {
	log.Debug(ios.logTag+"finding adjacent features", zap.Stringer("rule", r))
	if r.Source != nil {
		if err = ios.requireField(r.Source.Field); err != nil {
			err = fmt.Errorf("rule %s: %w", r, err)
			return
		}
	}
	if !ios.hasNVField(r.Field) {
		if err = ios.ComputeNeighborValues(r.Field, nil, true); err != nil {
			return
		}
	}
	m = make(Mask, len(ios.order))
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		nv, ok := o.neighborValues(r.Field)
		if !ok {
			continue
		}
		if r.Source != nil {
			sv, ok := o.Values[r.Source.Field]
			if !ok {
				continue
			}
			if !r.Source.Op.Compare(sv, r.Source.Threshold) {
				m[o.ID] = false
				continue
			}
		}
		hit := false
		for _, n := range nv {
			if r.Op.Compare(n.Value, r.Threshold) {
				hit = true
				break
			}
		}
		m[o.ID] = hit
	}
	return
}

func (ios *ImageObjects) storeMask(field string, m Mask) {
	for id, v := range m {
		o := ios.objs[id]
		if v {
			o.Values[field] = 1
		} else {
			o.Values[field] = 0
		}
	}
	ios.registerField(field)
}

func (ios *ImageObjects) addRuleField(f string) {
	for _, rf := range ios.ruleFields {
		if rf == f {
			return
		}
	}
	ios.ruleFields = append(ios.ruleFields, f)
}

// ApplyRules ANDs rule results. Every live object gets an entry; one missing
// result under any rule makes it false. No rules at all match everything.
func (ios *ImageObjects) ApplyRules(rules []Rule) (Mask, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	results := make([]Mask, 0, len(rules))
	for _, r := range rules {
		m, err := ios.ApplyRule(r)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return ios.and(results...), nil
}

func (ios *ImageObjects) and(masks ...Mask) Mask {
	out := make(Mask, len(ios.order))
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		all := true
		for _, m := range masks {
			if !m[o.ID] {
				all = false
				break
			}
		}
		out[o.ID] = all
	}
	return out
}

// BestAdjacentTo returns, per object, the neighbor holding the extreme value
// of field: minimum for < and <=, maximum for > and >=. The first extreme in
// neighbor order wins ties. Objects without neighbor values are omitted.
func (ios *ImageObjects) BestAdjacentTo(field string, op Op) (map[ObjectID]NeighborValue, error) {
	var wantMin bool
	switch op {
	case OpLT, OpLE:
		wantMin = true
	case OpGT, OpGE:
	default:
		return nil, fmt.Errorf("%w: %s for best adjacent on %q", ErrUnsupportedOp, op, field)
	}
	if err := ios.requireField(field); err != nil {
		return nil, err
	}
	log.Debug(ios.logTag+"finding best adjacent values", zap.String("field", field), zap.Stringer("op", op))
	if !ios.hasNVField(field) {
		if err := ios.ComputeNeighborValues(field, nil, false); err != nil {
			return nil, err
		}
	}
	out := map[ObjectID]NeighborValue{}
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		nv, ok := o.neighborValues(field)
		if !ok || len(nv) == 0 {
			continue
		}
		best := nv[0]
		for _, n := range nv[1:] {
			if (wantMin && n.Value < best.Value) || (!wantMin && n.Value > best.Value) {
				best = n
			}
		}
		out[o.ID] = best
	}
	return out, nil
}

// MergeSeeds marks objects passing all rules as merge seeds and returns them.
func (ios *ImageObjects) MergeSeeds(rules []Rule) ([]ObjectID, error) {
	m, err := ios.ApplyRules(rules)
	if err != nil {
		return nil, err
	}
	var seeds []ObjectID
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		o.MergeSeed = m[o.ID]
		if o.MergeSeed {
			seeds = append(seeds, o.ID)
		}
	}
	log.Info(ios.logTag+"merge seeds found", zap.Int("cnt", len(seeds)))
	return seeds, nil
}
