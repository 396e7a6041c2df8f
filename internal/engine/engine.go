// Package engine provides the execution side of the gateway: a Schema
// contract the HTTP layer calls into, plus an SDL-backed reference
// implementation that resolves fields through a Runtime.
package engine

import (
	"context"

	graphql "github.com/hanpama/gqlgate/internal/graphql"
)

// ExecuteParams carries one normalized request into execution.
type ExecuteParams struct {
	Query         string
	Variables     map[string]any
	OperationName string

	// RootValue is the source value for root field resolution.
	RootValue any

	// ContextValues is transport-supplied per-request state; it is made
	// available to resolvers via ContextValues(ctx).
	ContextValues map[string]any

	// AllowedOperationTypes restricts which operation kinds may execute.
	// nil means no restriction.
	AllowedOperationTypes graphql.OperationTypes
}

// Schema executes GraphQL documents. ExecuteSync blocks for the duration
// of resolution.
//
// Execution failures are reported inside the Result. The returned error is
// reserved for the pre-execution rejection of a disallowed operation type
// (*graphql.InvalidOperationTypeError), which callers must be able to
// translate separately.
type Schema interface {
	ExecuteSync(ctx context.Context, params ExecuteParams) (*graphql.Result, error)
}

type contextValuesKey struct{}

// WithContextValues stores transport-supplied values for resolvers.
func WithContextValues(ctx context.Context, values map[string]any) context.Context {
	if values == nil {
		return ctx
	}
	return context.WithValue(ctx, contextValuesKey{}, values)
}

// ContextValues returns the values stored by WithContextValues, or nil.
func ContextValues(ctx context.Context) map[string]any {
	values, _ := ctx.Value(contextValuesKey{}).(map[string]any)
	return values
}
