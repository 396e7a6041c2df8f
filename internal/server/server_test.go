package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"google.golang.org/grpc/metadata"

	engine "github.com/hanpama/gqlgate/internal/engine"
	graphql "github.com/hanpama/gqlgate/internal/graphql"
	uploads "github.com/hanpama/gqlgate/internal/uploads"
)

const testSDL = `
scalar Upload

type Query {
  hello: String!
  echo(message: String!): String!
}

type Mutation {
  updateName(name: String!): String!
  readTextFile(file: Upload!): String!
}
`

func newTestHandler(t *testing.T, extra engine.ResolverMap, opts ...Option) *Handler {
	t.Helper()
	resolvers := engine.ResolverMap{
		"Query.hello": engine.ValueResolver("Hello world"),
		"Query.echo": func(ctx context.Context, source any, args map[string]any) (any, error) {
			return args["message"], nil
		},
		"Mutation.updateName": func(ctx context.Context, source any, args map[string]any) (any, error) {
			return args["name"], nil
		},
		"Mutation.readTextFile": func(ctx context.Context, source any, args map[string]any) (any, error) {
			upload, ok := args["file"].(uploads.Upload)
			if !ok {
				t.Fatalf("file argument is %T, want uploads.Upload", args["file"])
			}
			content, err := io.ReadAll(upload.File)
			if err != nil {
				return nil, err
			}
			return string(content), nil
		},
	}
	for k, v := range extra {
		resolvers[k] = v
	}
	schema, err := engine.New(resolvers, testSDL)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return New(schema, opts...)
}

func postJSON(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestPostJSONQuery(t *testing.T) {
	h := newTestHandler(t, nil)
	w := postJSON(t, h, `{"query": "{ hello }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type %q", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"data":{"hello":"Hello world"}}` {
		t.Fatalf("body %q", got)
	}
}

func TestPostJSONWithVariables(t *testing.T) {
	h := newTestHandler(t, nil)
	w := postJSON(t, h, `{"query": "query($m: String!) { echo(message: $m) }", "variables": {"m": "hi"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["data"].(map[string]any)["echo"] != "hi" {
		t.Fatalf("body %v", body)
	}
}

func TestPostMalformedJSON(t *testing.T) {
	h := newTestHandler(t, nil)
	w := postJSON(t, h, `{"query": `)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if w.Body.String() != "Unable to parse request body as JSON" {
		t.Fatalf("body %q", w.Body.String())
	}
}

func TestPostWithoutQuery(t *testing.T) {
	h := newTestHandler(t, nil)
	w := postJSON(t, h, `{"variables": {}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if w.Body.String() != "No GraphQL query found in the request" {
		t.Fatalf("body %q", w.Body.String())
	}
}

func TestUnsupportedMethod(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest("PUT", "/graphql", strings.NewReader(`{"query": "{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", w.Code)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader("{ hello }"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status %d", w.Code)
	}
}

func TestGetQueryParams(t *testing.T) {
	h := newTestHandler(t, nil)
	params := url.Values{}
	params.Set("query", "query($m: String!) { echo(message: $m) }")
	params.Set("variables", `{"m": "from get"}`)
	req := httptest.NewRequest("GET", "/graphql?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["data"].(map[string]any)["echo"] != "from get" {
		t.Fatalf("body %v", body)
	}
}

func TestGetMalformedVariables(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest("GET", "/graphql?query={hello}&variables={", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestGetMutationRejected(t *testing.T) {
	h := newTestHandler(t, nil)
	params := url.Values{}
	params.Set("query", `mutation { updateName(name: "x") }`)
	req := httptest.NewRequest("GET", "/graphql?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if w.Body.String() != "mutations are not allowed when using GET" {
		t.Fatalf("body %q", w.Body.String())
	}
}

func TestGetQueriesConfigurable(t *testing.T) {
	query := url.Values{"query": {"{ hello }"}}.Encode()

	h := newTestHandler(t, nil, WithGETQueries(false))
	req := httptest.NewRequest("GET", "/graphql?"+query, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if w.Body.String() != "queries are not allowed when using GET" {
		t.Fatalf("body %q", w.Body.String())
	}

	h = newTestHandler(t, nil, WithGETQueries(true))
	req = httptest.NewRequest("GET", "/graphql?"+query, nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestGraphiQLOnBareGet(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest("GET", "/graphql", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type %q", ct)
	}

	h = newTestHandler(t, nil, WithGraphiQL(false))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestGraphiQLRendererOverride(t *testing.T) {
	h := newTestHandler(t, nil, WithGraphiQLRenderer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("custom console"))
	}))
	req := httptest.NewRequest("GET", "/graphql", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Body.String() != "custom console" {
		t.Fatalf("body %q", w.Body.String())
	}
}

func multipartRequest(t *testing.T, operations, fileMap string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("operations", operations); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("map", fileMap); err != nil {
		t.Fatal(err)
	}
	for key, content := range files {
		fw, err := mw.CreateFormFile(key, key+".txt")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/graphql", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestMultipartUpload(t *testing.T) {
	h := newTestHandler(t, nil)
	req := multipartRequest(t,
		`{"query": "mutation($f: Upload!) { readTextFile(file: $f) }", "variables": {"f": null}}`,
		`{"0": ["variables.f"]}`,
		map[string]string{"0": "file content"},
	)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["data"].(map[string]any)["readTextFile"] != "file content" {
		t.Fatalf("body %v", body)
	}
}

func TestMultipartBatchedUpload(t *testing.T) {
	h := newTestHandler(t, nil)
	req := multipartRequest(t,
		`[{"query": "mutation($f: Upload!) { readTextFile(file: $f) }", "variables": {"f": null}}]`,
		`{"0": ["0.variables.f"]}`,
		map[string]string{"0": "batched content"},
	)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", w.Code, w.Body.String())
	}
	var results []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if results[0]["data"].(map[string]any)["readTextFile"] != "batched content" {
		t.Fatalf("results %v", results)
	}
}

func TestMultipartMissingFile(t *testing.T) {
	h := newTestHandler(t, nil)
	req := multipartRequest(t,
		`{"query": "mutation($f: Upload!) { readTextFile(file: $f) }", "variables": {"f": null}}`,
		`{"0": ["variables.f"]}`,
		nil,
	)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if w.Body.String() != "File(s) missing in form data" {
		t.Fatalf("body %q", w.Body.String())
	}
}

func TestMultipartMalformedOperations(t *testing.T) {
	h := newTestHandler(t, nil)
	req := multipartRequest(t, `{"query":`, `{}`, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestBatchedJSONRequest(t *testing.T) {
	h := newTestHandler(t, nil)
	w := postJSON(t, h, `[{"query": "{ hello }"}, {"query": "query($m: String!) { echo(message: $m) }", "variables": {"m": "two"}}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var results []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0]["data"].(map[string]any)["hello"] != "Hello world" {
		t.Fatalf("results %v", results)
	}
	if results[1]["data"].(map[string]any)["echo"] != "two" {
		t.Fatalf("results %v", results)
	}
}

func TestEmptyBatchRejected(t *testing.T) {
	h := newTestHandler(t, nil)
	w := postJSON(t, h, `[]`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, nil, WithMaxBodyBytes(10))
	w := postJSON(t, h, `{"query": "{ hello }"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d", w.Code)
	}
}

func TestExecutionErrorsKeepStatus200(t *testing.T) {
	h := newTestHandler(t, engine.ResolverMap{
		"Query.hello": engine.ErrorResolver(context.DeadlineExceeded),
	})
	w := postJSON(t, h, `{"query": "{ hello }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := decodeBody(t, w)
	if _, ok := body["errors"]; !ok {
		t.Fatalf("expected errors in body %v", body)
	}
}

func TestResultStatusOverride(t *testing.T) {
	h := newTestHandler(t, engine.ResolverMap{
		"Query.hello": engine.ErrorResolver(context.DeadlineExceeded),
	}, WithResultStatus(func(result *graphql.Result) int {
		if len(result.Errors) > 0 {
			return http.StatusBadRequest
		}
		return http.StatusOK
	}))
	w := postJSON(t, h, `{"query": "{ hello }"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, nil, WithCORS("*"))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{"query": "{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	pre := httptest.NewRequest("OPTIONS", "/graphql", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestForwardedHeaders(t *testing.T) {
	var captured metadata.MD
	h := newTestHandler(t, engine.ResolverMap{
		"Query.hello": func(ctx context.Context, source any, args map[string]any) (any, error) {
			captured, _ = metadata.FromOutgoingContext(ctx)
			return "world", nil
		},
	}, WithMetadataHeaders("X-Test"))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{"query": "{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "abc")
	req.Header.Set("X-Other", "nope")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if captured == nil || captured.Get("x-test")[0] != "abc" || len(captured.Get("x-other")) > 0 {
		t.Fatalf("metadata not propagated correctly: %v", captured)
	}
}

func TestRootValueAndContextHooks(t *testing.T) {
	var gotRoot any
	var gotValues map[string]any
	h := newTestHandler(t, engine.ResolverMap{
		"Query.hello": func(ctx context.Context, source any, args map[string]any) (any, error) {
			gotRoot = source
			gotValues = engine.ContextValues(ctx)
			return "ok", nil
		},
	},
		WithRootValue(func(r *http.Request) any { return "root" }),
		WithContextValue(func(w http.ResponseWriter, r *http.Request) map[string]any {
			return map[string]any{"user": "u1"}
		}),
	)
	w := postJSON(t, h, `{"query": "{ hello }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if gotRoot != "root" {
		t.Fatalf("root value %v", gotRoot)
	}
	if gotValues["user"] != "u1" {
		t.Fatalf("context values %v", gotValues)
	}
}

func TestPrettyOutput(t *testing.T) {
	h := newTestHandler(t, nil, WithPretty())
	w := postJSON(t, h, `{"query": "{ hello }"}`)
	if !strings.Contains(w.Body.String(), "\n  ") {
		t.Fatalf("expected indented output, got %q", w.Body.String())
	}
}
