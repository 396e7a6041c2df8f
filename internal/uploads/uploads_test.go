package uploads

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestReplaceSinglePlaceholder(t *testing.T) {
	operations := map[string]any{
		"query":     "mutation($file: Upload!) { readTextFile(file: $file) }",
		"variables": map[string]any{"file": nil},
	}
	upload := Upload{Filename: "hello.txt", Size: 5}

	doc, err := ReplacePlaceholders(operations, map[string][]string{"0": {"variables.file"}}, Files{"0": upload})
	require.NoError(t, err)

	obj := doc.(map[string]any)
	got := obj["variables"].(map[string]any)["file"]
	require.Equal(t, upload, got)
	require.Equal(t, "mutation($file: Upload!) { readTextFile(file: $file) }", obj["query"])
}

func TestReplaceInBatchedDocument(t *testing.T) {
	operations := []any{
		map[string]any{
			"query":     "mutation($file: Upload!) { readTextFile(file: $file) }",
			"variables": map[string]any{"file": nil},
		},
		map[string]any{
			"query":     "{ hello }",
			"variables": map[string]any{},
		},
	}
	upload := Upload{Filename: "batch.txt"}

	doc, err := ReplacePlaceholders(operations, map[string][]string{"0": {"0.variables.file"}}, Files{"0": upload})
	require.NoError(t, err)

	list := doc.([]any)
	got := list[0].(map[string]any)["variables"].(map[string]any)["file"]
	require.Equal(t, upload, got)
}

func TestReplaceWithListVariableAndBracketPath(t *testing.T) {
	operations := map[string]any{
		"query":     "mutation($files: [Upload!]!) { readAll(files: $files) }",
		"variables": map[string]any{"files": []any{nil, nil}},
	}
	first := Upload{Filename: "a.txt"}
	second := Upload{Filename: "b.txt"}

	doc, err := ReplacePlaceholders(operations, map[string][]string{
		"0": {"variables.files.0"},
		"1": {"variables.files[1]"},
	}, Files{"0": first, "1": second})
	require.NoError(t, err)

	files := doc.(map[string]any)["variables"].(map[string]any)["files"].([]any)
	require.Equal(t, first, files[0])
	require.Equal(t, second, files[1])
}

func TestEmptyMapLeavesDocumentUnchanged(t *testing.T) {
	operations := map[string]any{
		"query":     "{ hello }",
		"variables": map[string]any{"greeting": "hi"},
	}
	want := map[string]any{
		"query":     "{ hello }",
		"variables": map[string]any{"greeting": "hi"},
	}

	doc, err := ReplacePlaceholders(operations, map[string][]string{}, Files{})
	require.NoError(t, err)
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document changed (-want +got):\n%s", diff)
	}
}

func TestMissingFileKey(t *testing.T) {
	operations := map[string]any{
		"query":     "mutation($file: Upload!) { readTextFile(file: $file) }",
		"variables": map[string]any{"file": nil},
	}

	_, err := ReplacePlaceholders(operations, map[string][]string{"0": {"variables.file"}}, Files{})
	var missing *MissingFileError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "0", missing.Key)
}

func TestUnresolvablePath(t *testing.T) {
	operations := map[string]any{
		"query":     "mutation($file: Upload!) { readTextFile(file: $file) }",
		"variables": map[string]any{},
	}

	_, err := ReplacePlaceholders(operations, map[string][]string{"0": {"variables.file"}}, Files{"0": {}})
	var pathErr *PathError
	require.ErrorAs(t, err, &pathErr)

	_, err = ReplacePlaceholders(operations, map[string][]string{"0": {"variables.nested.file"}}, Files{"0": {}})
	require.ErrorAs(t, err, &pathErr)

	_, err = ReplacePlaceholders([]any{}, map[string][]string{"0": {"3.variables.file"}}, Files{"0": {}})
	require.ErrorAs(t, err, &pathErr)
}
