package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/vektah/gqlparser/v2/gqlerror"

	graphql "github.com/hanpama/gqlgate/internal/graphql"
	language "github.com/hanpama/gqlgate/internal/language"
)

// Engine is an SDL-backed Schema. It parses each document, enforces the
// allowed operation types, and walks the selection set resolving fields
// through its Runtime. It holds no per-request state and is safe to share
// across concurrent requests.
type Engine struct {
	runtime Runtime
	schema  *language.Schema
}

// New builds an Engine from an SDL document and a Runtime.
func New(runtime Runtime, sdl string) (*Engine, error) {
	schema, err := language.LoadSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return &Engine{runtime: runtime, schema: schema}, nil
}

// executionState accumulates errors while walking one document.
type executionState struct {
	document  *language.QueryDocument
	variables map[string]any
	errors    []graphql.Error
}

func (e *Engine) ExecuteSync(ctx context.Context, params ExecuteParams) (*graphql.Result, error) {
	doc, err := language.ParseQuery(params.Query)
	if err != nil {
		return &graphql.Result{Errors: asGraphQLErrors(err)}, nil
	}

	op := doc.Operations.ForName(params.OperationName)
	if op == nil {
		if params.OperationName != "" {
			return &graphql.Result{Errors: []graphql.Error{
				{Message: fmt.Sprintf("unknown operation named %q", params.OperationName)},
			}}, nil
		}
		return &graphql.Result{Errors: []graphql.Error{
			{Message: "must provide operation name if query contains multiple operations"},
		}}, nil
	}

	opType := graphql.OperationType(op.Operation)
	if params.AllowedOperationTypes != nil && !params.AllowedOperationTypes.Has(opType) {
		return nil, &graphql.InvalidOperationTypeError{OperationType: opType}
	}

	var rootType *language.Definition
	switch op.Operation {
	case language.Query:
		rootType = e.schema.Query
	case language.Mutation:
		rootType = e.schema.Mutation
	case language.Subscription:
		rootType = e.schema.Subscription
	}
	if rootType == nil {
		return &graphql.Result{Errors: []graphql.Error{
			{Message: fmt.Sprintf("schema does not support %s operations", opType)},
		}}, nil
	}

	ctx = WithContextValues(ctx, params.ContextValues)

	state := &executionState{
		document:  doc,
		variables: variablesWithDefaults(op, params.Variables),
	}

	data := e.executeSelectionSet(ctx, state, rootType, op.SelectionSet, params.RootValue, nil)
	return &graphql.Result{Data: data, Errors: state.errors}, nil
}

// variablesWithDefaults fills absent variables from operation defaults.
func variablesWithDefaults(op *language.OperationDefinition, vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	for _, def := range op.VariableDefinitions {
		if _, ok := out[def.Variable]; ok || def.DefaultValue == nil {
			continue
		}
		if v, err := def.DefaultValue.Value(nil); err == nil {
			out[def.Variable] = v
		}
	}
	return out
}

func (e *Engine) executeSelectionSet(ctx context.Context, state *executionState, def *language.Definition, selections language.SelectionSet, source any, path []any) map[string]any {
	result := make(map[string]any, len(selections))
	for _, selection := range selections {
		switch sel := selection.(type) {
		case *language.Field:
			if skipField(state, sel) {
				continue
			}
			key := sel.Alias
			if key == "" {
				key = sel.Name
			}
			result[key] = e.executeField(ctx, state, def, sel, source, appendPath(path, key))
		case *language.FragmentSpread:
			frag := state.document.Fragments.ForName(sel.Name)
			if frag == nil {
				continue
			}
			if frag.TypeCondition != "" && frag.TypeCondition != def.Name {
				continue
			}
			for k, v := range e.executeSelectionSet(ctx, state, def, frag.SelectionSet, source, path) {
				result[k] = v
			}
		case *language.InlineFragment:
			if sel.TypeCondition != "" && sel.TypeCondition != def.Name {
				continue
			}
			for k, v := range e.executeSelectionSet(ctx, state, def, sel.SelectionSet, source, path) {
				result[k] = v
			}
		}
	}
	return result
}

func (e *Engine) executeField(ctx context.Context, state *executionState, def *language.Definition, field *language.Field, source any, path []any) any {
	if field.Name == "__typename" {
		return def.Name
	}

	args := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := arg.Value.Value(state.variables)
		if err != nil {
			state.addError(graphql.Error{Message: err.Error(), Path: path})
			return nil
		}
		args[arg.Name] = v
	}

	value, err := e.runtime.Resolve(ctx, def.Name, field.Name, source, args)
	if err != nil {
		state.addError(graphql.Error{Message: err.Error(), Path: path})
		return nil
	}

	if len(field.SelectionSet) == 0 {
		return value
	}

	fieldDef := def.Fields.ForName(field.Name)
	if fieldDef == nil {
		state.addError(graphql.Error{
			Message: fmt.Sprintf("field %q is not defined on type %q", field.Name, def.Name),
			Path:    path,
		})
		return nil
	}
	childDef := e.schema.Types[fieldDef.Type.Name()]
	if childDef == nil || value == nil {
		return nil
	}

	return e.completeValue(ctx, state, childDef, field.SelectionSet, value, path)
}

func (e *Engine) completeValue(ctx context.Context, state *executionState, def *language.Definition, selections language.SelectionSet, value any, path []any) any {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		items := make([]any, rv.Len())
		for i := range items {
			item := rv.Index(i).Interface()
			if item == nil {
				continue
			}
			items[i] = e.completeValue(ctx, state, def, selections, item, appendPath(path, i))
		}
		return items
	}
	return e.executeSelectionSet(ctx, state, def, selections, value, path)
}

func (s *executionState) addError(err graphql.Error) {
	s.errors = append(s.errors, err)
}

// appendPath copies so stored error paths are not aliased by siblings.
func appendPath(path []any, elem any) []any {
	out := make([]any, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

// skipField applies the @skip and @include directives.
func skipField(state *executionState, field *language.Field) bool {
	if d := field.Directives.ForName("skip"); d != nil {
		if arg := d.Arguments.ForName("if"); arg != nil {
			if v, err := arg.Value.Value(state.variables); err == nil && v == true {
				return true
			}
		}
	}
	if d := field.Directives.ForName("include"); d != nil {
		if arg := d.Arguments.ForName("if"); arg != nil {
			if v, err := arg.Value.Value(state.variables); err == nil && v != true {
				return true
			}
		}
	}
	return false
}

func asGraphQLErrors(err error) []graphql.Error {
	var list gqlerror.List
	if errors.As(err, &list) {
		out := make([]graphql.Error, len(list))
		for i, ge := range list {
			out[i] = asGraphQLError(ge)
		}
		return out
	}
	var ge *gqlerror.Error
	if errors.As(err, &ge) {
		return []graphql.Error{asGraphQLError(ge)}
	}
	return []graphql.Error{{Message: err.Error()}}
}

func asGraphQLError(ge *gqlerror.Error) graphql.Error {
	out := graphql.Error{Message: ge.Message}
	for _, loc := range ge.Locations {
		out.Locations = append(out.Locations, graphql.Location{Line: loc.Line, Column: loc.Column})
	}
	return out
}
