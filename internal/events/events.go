// Package events defines the in-process events the gateway publishes
// through the eventbus. Subscribers (logging, tracing) correlate start and
// finish events via the request id in the context.
package events

import (
	"net/http"
	"time"

	graphql "github.com/hanpama/gqlgate/internal/graphql"
)

// HTTPStart is emitted when a request is received.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the response has been written.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// GraphQLStart is emitted before executing one operation.
type GraphQLStart struct {
	Query         string
	OperationName string
}

// GraphQLFinish is emitted after executing one operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	Errors        []graphql.Error
	Duration      time.Duration
}
