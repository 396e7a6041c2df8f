package engine

import (
	"context"
	"fmt"
)

// Resolver resolves a single field. source is the parent value (nil for
// root fields) and args holds already-coerced argument values.
type Resolver func(ctx context.Context, source any, args map[string]any) (any, error)

// Runtime is the host integration surface for field resolution.
// Implementations must be safe for concurrent use; the engine invokes them
// from independent requests without coordination.
type Runtime interface {
	Resolve(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error)
}

// ResolverMap is a Runtime backed by a registry keyed "ObjectType.field".
// Fields without a registered resolver fall back to map key access on the
// source value.
type ResolverMap map[string]Resolver

func (m ResolverMap) Resolve(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if r, ok := m[objectType+"."+field]; ok {
		return r(ctx, source, args)
	}
	if obj, ok := source.(map[string]any); ok {
		return obj[field], nil
	}
	return nil, fmt.Errorf("no resolver for %s.%s", objectType, field)
}

// ValueResolver returns a Resolver that always yields val.
func ValueResolver(val any) Resolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return val, nil
	}
}

// ErrorResolver returns a Resolver that always fails with err.
func ErrorResolver(err error) Resolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, err
	}
}
