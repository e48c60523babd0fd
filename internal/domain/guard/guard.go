// Package guard compiles and evaluates CEL rules that gate the cascade fast
// path. A rule sees a single variable, report, with the fields
// model, student, score, calibrated, gap and has_gap.
//
// Examples:
//   - report.gap > 0.2
//   - report.calibrated >= 0.9 && report.student.startsWith("s-")
//   - report.has_gap && report.score > 0.8
package guard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	env     *cel.Env
	envErr  error
	envOnce sync.Once
)

func getEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("report", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return env, envErr
}

// Input is the fast-model view exposed to a rule.
type Input struct {
	Model      string
	Student    string
	Score      float64
	Calibrated float64
	Gap        float64
	HasGap     bool
}

func (in Input) activation() map[string]any {
	return map[string]any{
		"report": map[string]any{
			"model":      in.Model,
			"student":    in.Student,
			"score":      in.Score,
			"calibrated": in.Calibrated,
			"gap":        in.Gap,
			"has_gap":    in.HasGap,
		},
	}
}

// Guard is a compiled rule. It is safe for concurrent use.
type Guard struct {
	expr    string
	program cel.Program
}

// Compile parses and type-checks expr. The expression must yield a bool.
func Compile(expr string) (*Guard, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyExpression
	}
	e, err := getEnv()
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression yields %s, want bool", ErrCompile, ast.OutputType())
	}
	prg, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	return &Guard{expr: expr, program: prg}, nil
}

// Expression returns the source text of the rule.
func (g *Guard) Expression() string { return g.expr }

// Allow evaluates the rule against in.
func (g *Guard) Allow(in Input) (bool, error) {
	out, _, err := g.program.Eval(in.activation())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluate, err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: result is %T, want bool", ErrEvaluate, out.Value())
	}
	return v, nil
}

// Cache memoizes compiled rules by expression text.
type Cache struct {
	mu     sync.RWMutex
	guards map[string]*Guard
}

// NewCache returns an empty rule cache.
func NewCache() *Cache {
	return &Cache{guards: make(map[string]*Guard)}
}

// Get returns the compiled rule for expr, compiling it on first use.
func (c *Cache) Get(expr string) (*Guard, error) {
	c.mu.RLock()
	g, ok := c.guards[expr]
	c.mu.RUnlock()
	if ok {
		return g, nil
	}
	g, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.guards[expr] = g
	c.mu.Unlock()
	return g, nil
}
