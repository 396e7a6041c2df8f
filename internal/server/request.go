package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	uploads "github.com/hanpama/gqlgate/internal/uploads"
)

// RequestData is the canonical form every supported request encoding is
// normalized into before execution.
type RequestData struct {
	Query         string
	Variables     map[string]any
	OperationName string
}

// protocolError is a request that failed before execution; it maps
// directly onto an HTTP status and a plain-text reason.
type protocolError struct {
	status  int
	message string
}

func (e *protocolError) Error() string { return e.message }

var (
	errMalformedBody        = &protocolError{http.StatusBadRequest, "Unable to parse request body as JSON"}
	errMissingQuery         = &protocolError{http.StatusBadRequest, "No GraphQL query found in the request"}
	errMissingUpload        = &protocolError{http.StatusBadRequest, "File(s) missing in form data"}
	errUnsupportedMediaType = &protocolError{http.StatusUnsupportedMediaType, "Unsupported Media Type"}
	errBodyTooLarge         = &protocolError{http.StatusRequestEntityTooLarge, "Request body too large"}
	errEmptyBatch           = &protocolError{http.StatusBadRequest, "Batched request must contain at least one operation"}

	// errNoOperation signals a bodiless GET carrying no operation at all;
	// the dispatcher answers it with GraphiQL or 404, not with an error.
	errNoOperation = errors.New("no GraphQL operation in request")
)

const defaultMultipartMemory = 32 << 20

// parseRequest classifies the request by content type and method and
// normalizes it into one or more RequestData. batch reports whether the
// payload was a JSON array and the response must be one as well. cleanup,
// when non-nil, releases upload handles and must run after the response
// has been written.
func (h *Handler) parseRequest(r *http.Request) (requests []RequestData, batch bool, cleanup func(), err error) {
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.Contains(contentType, "application/json"):
		body, err := h.readBody(r)
		if err != nil {
			return nil, false, nil, err
		}
		var payload any
		if err := h.opt.JSON.Unmarshal(body, &payload); err != nil {
			return nil, false, nil, errMalformedBody
		}
		requests, batch, err := toRequestBatch(payload)
		return requests, batch, nil, err

	case strings.HasPrefix(contentType, "multipart/form-data"):
		payload, cleanup, err := h.parseMultipart(r)
		if err != nil {
			return nil, false, cleanup, err
		}
		requests, batch, err := toRequestBatch(payload)
		return requests, batch, cleanup, err

	case r.Method == http.MethodGet:
		if len(r.URL.Query()) > 0 {
			req, err := h.decodeQueryParams(r.URL.Query())
			if err != nil {
				return nil, false, nil, err
			}
			return []RequestData{req}, false, nil, nil
		}
		return nil, false, nil, errNoOperation

	default:
		return nil, false, nil, errUnsupportedMediaType
	}
}

// parseMultipart reads the "operations" and "map" form fields and replaces
// upload placeholders with live file handles per the multipart convention.
func (h *Handler) parseMultipart(r *http.Request) (any, func(), error) {
	if err := r.ParseMultipartForm(defaultMultipartMemory); err != nil {
		return nil, nil, errMalformedBody
	}

	operationsField := r.FormValue("operations")
	if operationsField == "" {
		operationsField = "{}"
	}
	mapField := r.FormValue("map")
	if mapField == "" {
		mapField = "{}"
	}

	var operations any
	if err := h.opt.JSON.Unmarshal([]byte(operationsField), &operations); err != nil {
		return nil, nil, errMalformedBody
	}
	var fileMap map[string][]string
	if err := h.opt.JSON.Unmarshal([]byte(mapField), &fileMap); err != nil {
		return nil, nil, errMalformedBody
	}

	files, err := uploads.FromMultipartForm(r.MultipartForm)
	if err != nil {
		return nil, nil, errMissingUpload
	}
	payload, err := uploads.ReplacePlaceholders(operations, fileMap, files)
	if err != nil {
		return nil, files.Close, errMissingUpload
	}
	return payload, files.Close, nil
}

// decodeQueryParams maps flat GET parameters onto RequestData; variables
// arrive JSON-encoded.
func (h *Handler) decodeQueryParams(values url.Values) (RequestData, error) {
	req := RequestData{
		Query:         values.Get("query"),
		OperationName: values.Get("operationName"),
	}
	if raw := values.Get("variables"); raw != "" {
		if err := h.opt.JSON.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return RequestData{}, errMalformedBody
		}
	}
	if req.Query == "" {
		return RequestData{}, errMissingQuery
	}
	return req, nil
}

func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	reader := io.Reader(r.Body)
	if h.opt.MaxBodyBytes > 0 {
		reader = io.LimitReader(r.Body, h.opt.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errMalformedBody
	}
	defer r.Body.Close()
	if h.opt.MaxBodyBytes > 0 && int64(len(body)) > h.opt.MaxBodyBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// toRequestBatch accepts a single operation object or a list of them.
func toRequestBatch(payload any) ([]RequestData, bool, error) {
	if list, ok := payload.([]any); ok {
		if len(list) == 0 {
			return nil, true, errEmptyBatch
		}
		requests := make([]RequestData, len(list))
		for i, item := range list {
			req, err := toRequestData(item)
			if err != nil {
				return nil, true, err
			}
			requests[i] = req
		}
		return requests, true, nil
	}
	req, err := toRequestData(payload)
	if err != nil {
		return nil, false, err
	}
	return []RequestData{req}, false, nil
}

// toRequestData extracts query, variables, and operationName from one
// parsed payload. A missing or empty query is a hard failure.
func toRequestData(payload any) (RequestData, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return RequestData{}, errMissingQuery
	}
	query, _ := obj["query"].(string)
	if query == "" {
		return RequestData{}, errMissingQuery
	}
	req := RequestData{Query: query}
	if vars, ok := obj["variables"].(map[string]any); ok {
		req.Variables = vars
	}
	if name, ok := obj["operationName"].(string); ok {
		req.OperationName = name
	}
	return req, nil
}
