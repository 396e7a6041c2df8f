package server

import (
	"net/http"

	graphql "github.com/hanpama/gqlgate/internal/graphql"
)

// processResult shapes an execution result into the wire response object.
// "data" is always present; "errors" and "extensions" only when non-empty.
func processResult(result *graphql.Result) map[string]any {
	out := map[string]any{"data": result.Data}
	if len(result.Errors) > 0 {
		out["errors"] = result.Errors
	}
	if len(result.Extensions) > 0 {
		out["extensions"] = result.Extensions
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := h.opt.JSON.NewEncoder(w)
	if h.opt.Pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func (h *Handler) writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
