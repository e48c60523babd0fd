package guard

import "errors"

// Sentinel kinds for guard errors.
var (
	ErrEmptyExpression = errors.New("guard expression is empty")
	ErrCompile         = errors.New("guard compile failed")
	ErrEvaluate        = errors.New("guard evaluation failed")
)
