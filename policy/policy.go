package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/lattice-osint/engine/entity"
)

// Dispatch is the candidate a policy evaluates: the entity about to be
// searched and where the controller stands when it considers the search.
type Dispatch struct {
	// Value is the normalized entity value.
	Value string

	// Type is the entity type.
	Type entity.Type

	// Status is the entity's verification status at dispatch time.
	Status entity.VerificationStatus

	// Scope is the normalization scope the value belongs to.
	Scope string

	// Depth is the recursion depth of this dispatch, seed being zero.
	Depth int
}

// Policy decides whether a candidate dispatch may proceed.
type Policy struct {
	expr    string
	program cel.Program
}

// Compile builds a Policy from a CEL expression over the variables value,
// type, status, scope, and depth. An empty expression yields a policy that
// allows everything. Compilation errors are returned immediately so a bad
// policy never reaches the dispatch loop.
func Compile(expr string) (*Policy, error) {
	if expr == "" {
		return &Policy{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("value", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("scope", cel.StringType),
		cel.Variable("depth", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid policy expression %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("policy expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy program: %w", err)
	}

	return &Policy{expr: expr, program: program}, nil
}

// MustCompile is Compile that panics on error, for static expressions.
func MustCompile(expr string) *Policy {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Expression returns the source expression, empty for the allow-all policy.
func (p *Policy) Expression() string { return p.expr }

// Allows evaluates the policy against a candidate dispatch.
//
// Evaluation errors fail closed: a dispatch the policy cannot judge does
// not run.
func (p *Policy) Allows(d Dispatch) (bool, error) {
	if p == nil || p.program == nil {
		return true, nil
	}

	out, _, err := p.program.Eval(map[string]any{
		"value":  d.Value,
		"type":   string(d.Type),
		"status": string(d.Status),
		"scope":  d.Scope,
		"depth":  int64(d.Depth),
	})
	if err != nil {
		return false, fmt.Errorf("policy evaluation failed for %q: %w", d.Value, err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy %q returned non-bool %v", p.expr, out.Value())
	}
	return allowed, nil
}
