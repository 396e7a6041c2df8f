// Package server turns HTTP requests into GraphQL executions and maps the
// results back onto HTTP. It speaks JSON bodies, multipart file uploads,
// and GET query parameters, and serves GraphiQL on bare GET requests.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc/metadata"

	engine "github.com/hanpama/gqlgate/internal/engine"
	eventbus "github.com/hanpama/gqlgate/internal/eventbus"
	events "github.com/hanpama/gqlgate/internal/events"
	graphql "github.com/hanpama/gqlgate/internal/graphql"
	reqid "github.com/hanpama/gqlgate/internal/reqid"
)

// Handler is an http.Handler that serves a GraphQL endpoint. It is
// stateless between requests; a single Handler is safe to share across
// concurrent requests as long as its schema is.
type Handler struct {
	schema engine.Schema
	opt    Options
}

type Options struct {
	// GraphiQL enables the in-browser IDE on bodiless GET requests.
	GraphiQL bool

	// AllowQueriesViaGET permits query operations over GET. When false,
	// GET requests cannot execute anything.
	AllowQueriesViaGET bool

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata for
	// downstream resolvers. Header names are case-insensitive.
	MetadataHeaders []string

	// JSON is the encoder used for responses and request payloads.
	JSON jsoniter.API

	// ResultStatus decides the HTTP status for a delivered execution
	// result. The default always returns 200; hosts that want 400 on
	// data-less error results can override it.
	ResultStatus func(*graphql.Result) int

	// RootValue supplies the root value for execution.
	RootValue func(*http.Request) any

	// ContextValue supplies per-request values made available to resolvers.
	ContextValue func(http.ResponseWriter, *http.Request) map[string]any

	// RenderGraphiQL writes the exploratory page. Defaults to the
	// embedded GraphiQL build.
	RenderGraphiQL func(http.ResponseWriter, *http.Request)
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

type Option func(*Options)

func WithGraphiQL(enable bool) Option { return func(o *Options) { o.GraphiQL = enable } }
func WithGETQueries(allow bool) Option {
	return func(o *Options) { o.AllowQueriesViaGET = allow }
}
func WithPretty() Option              { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option { return func(o *Options) { o.MaxBodyBytes = n } }
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}
func WithJSON(api jsoniter.API) Option { return func(o *Options) { o.JSON = api } }
func WithResultStatus(fn func(*graphql.Result) int) Option {
	return func(o *Options) { o.ResultStatus = fn }
}
func WithRootValue(fn func(*http.Request) any) Option {
	return func(o *Options) { o.RootValue = fn }
}
func WithContextValue(fn func(http.ResponseWriter, *http.Request) map[string]any) Option {
	return func(o *Options) { o.ContextValue = fn }
}
func WithGraphiQLRenderer(fn func(http.ResponseWriter, *http.Request)) Option {
	return func(o *Options) { o.RenderGraphiQL = fn }
}

// New creates a GraphQL HTTP handler over the given schema.
func New(schema engine.Schema, opts ...Option) *Handler {
	op := Options{
		GraphiQL:           true,
		AllowQueriesViaGET: true,
		Timeout:            10 * time.Second,
		JSON:               jsoniter.ConfigCompatibleWithStandardLibrary,
	}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{schema: schema, opt: op}
	if h.opt.ResultStatus == nil {
		h.opt.ResultStatus = func(*graphql.Result) int { return http.StatusOK }
	}
	if h.opt.RootValue == nil {
		h.opt.RootValue = func(*http.Request) any { return nil }
	}
	if h.opt.ContextValue == nil {
		h.opt.ContextValue = func(w http.ResponseWriter, r *http.Request) map[string]any {
			return map[string]any{"request": r, "response": w}
		}
	}
	if h.opt.RenderGraphiQL == nil {
		h.opt.RenderGraphiQL = renderGraphiQLPage
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		h.writeText(w, status, "Unsupported method, must be of request type POST or GET")
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	requests, batch, cleanup, err := h.parseRequest(r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		if errors.Is(err, errNoOperation) {
			if shouldRenderGraphiQL(h.opt.GraphiQL, r) {
				h.opt.RenderGraphiQL(w, r)
				return
			}
			status = http.StatusNotFound
			h.writeText(w, status, "Not found")
			return
		}
		var perr *protocolError
		if errors.As(err, &perr) {
			status = perr.status
			h.writeText(w, status, perr.message)
			return
		}
		status = http.StatusBadRequest
		h.writeText(w, status, err.Error())
		return
	}

	// Map configured headers into outgoing gRPC metadata for resolvers
	// that call downstream services.
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md["graphql-request-id"] = []string{strconv.FormatInt(rid, 10)}
	ctx = metadata.NewOutgoingContext(ctx, md)

	allowedTypes := graphql.OperationTypesForMethod(r.Method)
	if !h.opt.AllowQueriesViaGET && r.Method == http.MethodGet {
		allowedTypes = allowedTypes.Without(graphql.Query)
	}

	contextValues := h.opt.ContextValue(w, r)
	rootValue := h.opt.RootValue(r)

	results := make([]*graphql.Result, 0, len(requests))
	for _, req := range requests {
		result, err := h.executeOne(ctx, req, rootValue, contextValues, allowedTypes)
		if err != nil {
			var invalid *graphql.InvalidOperationTypeError
			if errors.As(err, &invalid) {
				status = http.StatusBadRequest
				h.writeText(w, status, invalid.AsHTTPErrorReason(r.Method))
				return
			}
			status = http.StatusInternalServerError
			h.writeText(w, status, "Internal server error")
			return
		}
		results = append(results, result)
	}

	if batch {
		payload := make([]any, len(results))
		for i, result := range results {
			payload[i] = processResult(result)
		}
		h.writeJSON(w, status, payload)
		return
	}
	status = h.opt.ResultStatus(results[0])
	h.writeJSON(w, status, processResult(results[0]))
}

func (h *Handler) executeOne(ctx context.Context, req RequestData, rootValue any, contextValues map[string]any, allowed graphql.OperationTypes) (*graphql.Result, error) {
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName})
	result, err := h.schema.ExecuteSync(ctx, engine.ExecuteParams{
		Query:                 req.Query,
		Variables:             req.Variables,
		OperationName:         req.OperationName,
		RootValue:             rootValue,
		ContextValues:         contextValues,
		AllowedOperationTypes: allowed,
	})
	finish := events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		Duration:      time.Since(start),
	}
	if result != nil {
		finish.Errors = result.Errors
	}
	eventbus.Publish(ctx, finish)
	return result, err
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		if o == "*" || o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}
