// Package logging emits one structured log line per HTTP request and per
// GraphQL operation by subscribing to the eventbus.
package logging

import (
	"context"
	"strconv"

	abstractlogger "github.com/jensneuse/abstractlogger"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/gqlgate/internal/eventbus"
	events "github.com/hanpama/gqlgate/internal/events"
	reqid "github.com/hanpama/gqlgate/internal/reqid"
)

// NewZapLogger builds the gateway's default logger.
func NewZapLogger(debug bool) (abstractlogger.Logger, error) {
	if debug {
		z, err := zap.NewDevelopmentConfig().Build()
		if err != nil {
			return nil, err
		}
		return abstractlogger.NewZapLogger(z, abstractlogger.DebugLevel), nil
	}
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return abstractlogger.NewZapLogger(z, abstractlogger.InfoLevel), nil
}

// Attach subscribes log lines to the eventbus. The returned function
// removes the subscriptions.
func Attach(log abstractlogger.Logger) (detach func()) {
	unsubHTTP := eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		log.Info("http.request",
			abstractlogger.String("method", e.Request.Method),
			abstractlogger.String("path", e.Request.URL.Path),
			abstractlogger.Int("status", e.Status),
			abstractlogger.String("duration", e.Duration.String()),
			abstractlogger.String("request_id", strconv.FormatInt(rid, 10)),
		)
	})
	unsubGQL := eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
		rid, _ := reqid.FromContext(ctx)
		fields := []abstractlogger.Field{
			abstractlogger.String("operation_name", e.OperationName),
			abstractlogger.Int("error_count", len(e.Errors)),
			abstractlogger.String("duration", e.Duration.String()),
			abstractlogger.String("request_id", strconv.FormatInt(rid, 10)),
		}
		if len(e.Errors) > 0 {
			log.Error("graphql.operation", fields...)
			return
		}
		log.Debug("graphql.operation", fields...)
	})
	return func() {
		unsubHTTP()
		unsubGQL()
	}
}
