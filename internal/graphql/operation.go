package graphql

import (
	"fmt"
	"net/http"
)

// OperationType identifies the kind of top-level operation a GraphQL
// document declares.
type OperationType string

const (
	Query        OperationType = "query"
	Mutation     OperationType = "mutation"
	Subscription OperationType = "subscription"
)

// OperationTypes is a set over OperationType.
type OperationTypes map[OperationType]struct{}

func NewOperationTypes(types ...OperationType) OperationTypes {
	s := make(OperationTypes, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

func (s OperationTypes) Has(t OperationType) bool {
	_, ok := s[t]
	return ok
}

// Without returns a copy of s with the given types removed.
func (s OperationTypes) Without(types ...OperationType) OperationTypes {
	out := make(OperationTypes, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	for _, t := range types {
		delete(out, t)
	}
	return out
}

// OperationTypesForMethod returns the operation types an HTTP method may
// carry. POST allows everything; GET allows queries only.
func OperationTypesForMethod(method string) OperationTypes {
	switch method {
	case http.MethodGet:
		return NewOperationTypes(Query)
	case http.MethodPost:
		return NewOperationTypes(Query, Mutation, Subscription)
	default:
		return NewOperationTypes()
	}
}

// InvalidOperationTypeError reports that the parsed document's operation
// type is not permitted for the request that carried it. The executor
// returns it before any resolver runs, so transports can translate it
// distinctly from execution errors.
type InvalidOperationTypeError struct {
	OperationType OperationType
}

func (e *InvalidOperationTypeError) Error() string {
	return fmt.Sprintf("%s operations are not allowed", e.OperationType)
}

// AsHTTPErrorReason renders the human-readable rejection reason for the
// given HTTP method, e.g. "mutations are not allowed when using GET".
func (e *InvalidOperationTypeError) AsHTTPErrorReason(method string) string {
	var kind string
	switch e.OperationType {
	case Mutation:
		kind = "mutations"
	case Subscription:
		kind = "subscriptions"
	default:
		kind = "queries"
	}
	return fmt.Sprintf("%s are not allowed when using %s", kind, method)
}
