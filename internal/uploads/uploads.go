// Package uploads implements the GraphQL multipart request convention:
// an "operations" JSON document whose upload placeholders are overwritten
// in place with the files attached to the form, as directed by a "map" of
// form-field keys to document paths.
package uploads

import (
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
)

// Upload is a live handle to one uploaded file. The handle is only valid
// for the lifetime of the request that carried it.
type Upload struct {
	File        multipart.File
	Filename    string
	Size        int64
	ContentType string
}

// Files maps form-field keys to uploaded file handles.
type Files map[string]Upload

// FromMultipartForm opens the first file of every file field in form.
// Close must be called once the handles are no longer needed.
func FromMultipartForm(form *multipart.Form) (Files, error) {
	files := make(Files, len(form.File))
	for key, headers := range form.File {
		if len(headers) == 0 {
			continue
		}
		header := headers[0]
		f, err := header.Open()
		if err != nil {
			files.Close()
			return nil, fmt.Errorf("open upload %q: %w", key, err)
		}
		files[key] = Upload{
			File:        f,
			Filename:    header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
		}
	}
	return files, nil
}

// Close releases every file handle.
func (f Files) Close() {
	for _, u := range f {
		if u.File != nil {
			_ = u.File.Close()
		}
	}
}

// MissingFileError reports a map key with no corresponding uploaded file.
type MissingFileError struct {
	Key string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("no uploaded file for form field %q", e.Key)
}

// PathError reports a file map path that does not resolve to a placeholder
// inside the operations document.
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("file map path %q does not resolve in operations document", e.Path)
}

// ReplacePlaceholders overwrites every placeholder referenced by fileMap
// with the matching upload handle and returns the mutated document.
// Unrelated values and ordering are left untouched. The document may be a
// single operation object or a list of them; list paths carry a leading
// numeric index (e.g. "0.variables.file").
func ReplacePlaceholders(operations any, fileMap map[string][]string, files Files) (any, error) {
	for key, paths := range fileMap {
		upload, ok := files[key]
		if !ok {
			return nil, &MissingFileError{Key: key}
		}
		for _, path := range paths {
			if err := setAtPath(operations, path, upload); err != nil {
				return nil, err
			}
		}
	}
	return operations, nil
}

func setAtPath(doc any, path string, value any) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return &PathError{Path: path}
	}

	container := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := child(container, seg)
		if !ok {
			return &PathError{Path: path}
		}
		container = next
	}

	last := segments[len(segments)-1]
	switch c := container.(type) {
	case map[string]any:
		if _, ok := c[last]; !ok {
			return &PathError{Path: path}
		}
		c[last] = value
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(c) {
			return &PathError{Path: path}
		}
		c[i] = value
	default:
		return &PathError{Path: path}
	}
	return nil
}

func child(container any, segment string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[segment]
		return v, ok
	case []any:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	default:
		return nil, false
	}
}

// splitPath splits dot- or bracket-delimited paths: both
// "variables.files.0" and "variables.files[0]" yield the same segments.
func splitPath(path string) []string {
	normalized := strings.NewReplacer("[", ".", "]", "").Replace(path)
	var segments []string
	for _, seg := range strings.Split(normalized, ".") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
