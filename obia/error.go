package obia

import "errors"

var (
	ErrMissingField         = errors.New("field not found")
	ErrUnknownObject        = errors.New("unknown object")
	ErrDuplicateID          = errors.New("non-unique object id")
	ErrUnknownAggPolicy     = errors.New("unknown aggregation policy")
	ErrUnsupportedOp        = errors.New("unsupported comparison operator")
	ErrUnsupportedRuleType  = errors.New("unsupported rule type")
	ErrUnsupportedPredicate = errors.New("unsupported spatial predicate")
	ErrUnsupportedPairwise  = errors.New("unsupported pairwise criterion")
	ErrForeignGeometry      = errors.New("geometry implementations cannot be mixed")
	ErrNilGeometry          = errors.New("object has no geometry")
	ErrNoRules              = errors.New("no rules given")
	ErrEmptyLabel           = errors.New("class label is empty")
)
