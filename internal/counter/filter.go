package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

const defaultFilterTimeout = 2 * time.Second

// EventFilter is an optional, operator-supplied admission predicate
// evaluated over a validated Event before it reaches the aggregator. The
// core itself never inspects metadata (spec.md §3); a filter is the one
// sanctioned place an operator can do so, and only to admit or reject —
// never to rewrite the event.
type EventFilter struct {
	program cel.Program
	timeout time.Duration
}

// NewEventFilter compiles a CEL expression that must evaluate to a bool.
// The expression sees scope (string), delta (int), timestamp (int), and
// metadata (map[string]string) as top-level variables.
func NewEventFilter(expression string) (*EventFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("scope", cel.StringType),
		cel.Variable("delta", cel.IntType),
		cel.Variable("timestamp", cel.IntType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}

	return &EventFilter{program: prg, timeout: defaultFilterTimeout}, nil
}

// Allow reports whether the event should be admitted to the aggregator.
func (f *EventFilter) Allow(ctx context.Context, evt Event) (bool, error) {
	if f == nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	metadata := evt.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	out, _, err := f.program.Eval(map[string]any{
		"scope":     evt.Scope,
		"delta":     evt.Delta,
		"timestamp": evt.Timestamp,
		"metadata":  metadata,
	})
	if err != nil {
		return false, fmt.Errorf("cel eval: %w", err)
	}

	allow, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel eval: non-bool result %v (%s)", out, out.Type().TypeName())
	}
	return allow, nil
}
