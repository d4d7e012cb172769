package connector

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonEnvelope = `{
  "project_id": "acme",
  "items": [
    {"id": "sec-1", "type": "issue", "content": "SQL injection in login", "created_at": "2025-06-01T10:00:00Z",
     "metadata": {"comments": 8}},
    {"id": "c-1", "type": "comment", "content": "lgtm"}
  ]
}`

const jsonArray = `[{"id": "doc-1", "type": "document", "content": "Onboarding guide"}]`

const jsonLines = `{"id": "m-1", "type": "meeting", "content": "Weekly sync"}
{"id": "m-2", "type": "meeting", "content": "Retro"}
`

const yamlEnvelope = `project_id: acme
items:
  - id: pr-1
    type: pull_request
    content: Fix token refresh
    author: alice
    created_at: 2025-06-02T08:30:00Z
    metadata:
      reactions: 3
`

const yamlList = `- id: e-1
  type: email
  content: Quarterly plan
`

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
	return fs
}

func TestLoadFile_Formats(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/in/envelope.json": jsonEnvelope,
		"/in/array.json":    jsonArray,
		"/in/stream.jsonl":  jsonLines,
		"/in/batch.yaml":    yamlEnvelope,
		"/in/list.yml":      yamlList,
	})
	l := NewLoader(fs, "/in")

	tests := []struct {
		file    string
		format  string
		project string
		ids     []string
	}{
		{"envelope.json", FormatJSON, "acme", []string{"sec-1", "c-1"}},
		{"array.json", FormatJSON, "", []string{"doc-1"}},
		{"stream.jsonl", FormatJSONL, "", []string{"m-1", "m-2"}},
		{"batch.yaml", FormatYAML, "acme", []string{"pr-1"}},
		{"list.yml", FormatYAML, "", []string{"e-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			b, err := l.LoadFile(tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.format, b.Format)
			assert.Equal(t, tt.project, b.ProjectID)
			var ids []string
			for _, it := range b.Items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestLoadFile_DecodesFields(t *testing.T) {
	fs := newFs(t, map[string]string{"/in/envelope.json": jsonEnvelope, "/in/batch.yaml": yamlEnvelope})
	l := NewLoader(fs, "/in")

	b, err := l.LoadFile("envelope.json")
	require.NoError(t, err)
	sec := b.Items[0]
	assert.Equal(t, "issue", sec.Type)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), sec.CreatedAt.UTC())
	assert.Equal(t, float64(8), sec.Metadata["comments"])

	b, err = l.LoadFile("/in/batch.yaml")
	require.NoError(t, err)
	pr := b.Items[0]
	assert.Equal(t, "alice", pr.Author)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC), pr.CreatedAt.UTC())
	assert.Equal(t, 3, pr.Metadata["reactions"])
}

func TestLoadFile_Errors(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/in/notes.txt":  "hello",
		"/in/bad.json":   `{"items": [`,
		"/in/bad.jsonl":  "{\"id\": \"a\"}\nnot json\n",
		"/in/empty.json": "  ",
	})
	l := NewLoader(fs, "/in")

	_, err := l.LoadFile("notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = l.LoadFile("bad.json")
	assert.Error(t, err)

	_, err = l.LoadFile("bad.jsonl")
	assert.ErrorContains(t, err, "record 2")

	_, err = l.LoadFile("missing.json")
	assert.ErrorContains(t, err, "open batch")

	b, err := l.LoadFile("empty.json")
	require.NoError(t, err)
	assert.Empty(t, b.Items)
}

func TestLoadAll_WalksSupportedFilesInOrder(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/in/b.json":        jsonArray,
		"/in/a.jsonl":       jsonLines,
		"/in/nested/c.yaml": yamlList,
		"/in/README.md":     "# batches",
		"/elsewhere/x.json": jsonArray,
	})
	batches, err := NewLoader(fs, "/in").LoadAll()
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Equal(t, "/in/a.jsonl", batches[0].Path)
	assert.Equal(t, "/in/b.json", batches[1].Path)
	assert.Equal(t, "/in/nested/c.yaml", batches[2].Path)
	assert.Len(t, Items(batches), 4)
}

func TestLoadAll_MissingDir(t *testing.T) {
	batches, err := NewLoader(afero.NewMemMapFs(), "/nope").LoadAll()
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestLoadAll_RelativeBaseDir(t *testing.T) {
	fs := newFs(t, map[string]string{
		"exports/a.json": jsonArray,
	})
	batches, err := NewLoader(fs, "exports").LoadAll()
	require.NoError(t, err)

	require.Len(t, batches, 1)
	assert.Equal(t, "exports/a.json", batches[0].Path)
	assert.NotEmpty(t, batches[0].Items)
}
