// Package cel provides the optional CEL-based condition evaluator that
// backs a target Rule's additive Condition field. It implements
// acl.RuleEvaluator without the acl package taking a direct dependency on
// google/cel-go.
package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// maxExpressionLength bounds a rule's condition length; rules are
// admin-authored via the management API, not untrusted client input, but a
// bound keeps a pathological config from producing an unbounded compile.
const maxExpressionLength = 1024

// maxCostBudget limits the CEL runtime cost per evaluation.
const maxCostBudget = 10_000

// evalTimeout bounds a single evaluation; ACL checks run on the accept hot
// path and must never block a connection indefinitely.
const evalTimeout = 50 * time.Millisecond

// Evaluator compiles and evaluates target-rule CEL conditions against the
// host and path of the current request. It satisfies acl.RuleEvaluator.
type Evaluator struct {
	env *cel.Env

	mu    sync.Mutex
	cache map[string]cel.Program
}

// NewEvaluator creates an Evaluator with a CEL environment exposing the two
// variables a target Rule's condition may reference: host and path.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("host", cel.StringType),
		cel.Variable("path", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Compile parses, type-checks, and plans expr for repeated evaluation.
func (e *Evaluator) Compile(expr string) (cel.Program, error) {
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("condition too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if expr == "" {
		return nil, errors.New("condition is empty")
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile condition: %w", issues.Err())
	}
	prg, err := e.env.Program(ast, cel.EvalOptions(cel.OptOptimize), cel.CostLimit(maxCostBudget))
	if err != nil {
		return nil, fmt.Errorf("plan condition: %w", err)
	}
	return prg, nil
}

// EvaluateCondition compiles expr (cached per-expression string) and runs it
// against host/path, satisfying acl.RuleEvaluator. A compile or evaluation
// failure is returned as an error; the caller (acl.TargetAllowed) treats any
// error as "rule does not match" rather than denying outright, so a
// misconfigured condition falls through to the next rule / default action
// instead of locking the proxy.
func (e *Evaluator) EvaluateCondition(expr, host, path string) (bool, error) {
	e.mu.Lock()
	prg, ok := e.cache[expr]
	e.mu.Unlock()
	if !ok {
		compiled, err := e.Compile(expr)
		if err != nil {
			return false, err
		}
		prg = compiled
		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, map[string]any{"host": host, "path": path})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to bool, got %T", result.Value())
	}
	return b, nil
}
