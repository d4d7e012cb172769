// Package connector loads raw item batches from JSON, JSONL and YAML files.
package connector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

// Supported batch file formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatYAML  = "yaml"
)

// ErrUnsupportedFormat is returned for files whose extension maps to no format.
var ErrUnsupportedFormat = errors.New("unsupported batch format")

// Batch is the items read from one file. ProjectID is set only when the file
// declares one in its envelope.
type Batch struct {
	Path      string         `json:"path"`
	Format    string         `json:"format"`
	ProjectID string         `json:"project_id,omitempty"`
	Items     []scoring.Item `json:"items"`
}

// envelope is the object form of a JSON or YAML batch.
type envelope struct {
	ProjectID string         `json:"project_id" yaml:"project_id"`
	Items     []scoring.Item `json:"items" yaml:"items"`
}

// Loader reads batch files through an afero.Fs so tests can run in memory.
type Loader struct {
	fs      afero.Fs
	baseDir string
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(fs afero.Fs, baseDir string) *Loader {
	return &Loader{fs: fs, baseDir: baseDir}
}

// FormatFor maps a file extension to a batch format.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadFile reads one batch file. Relative paths resolve against the base dir.
func (l *Loader) LoadFile(path string) (*Batch, error) {
	if !filepath.IsAbs(path) && l.baseDir != "" {
		path = filepath.Join(l.baseDir, path)
	}
	return l.load(path)
}

func (l *Loader) load(path string) (*Batch, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	file, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}

	b := &Batch{Path: path, Format: format}
	switch format {
	case FormatJSON:
		err = decodeJSON(data, b)
	case FormatJSONL:
		err = decodeJSONL(data, b)
	case FormatYAML:
		err = decodeYAML(data, b)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return b, nil
}

// LoadAll reads every supported file under the base dir, sorted by path.
// A missing base dir yields no batches.
func (l *Loader) LoadAll() ([]*Batch, error) {
	exists, err := afero.DirExists(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("check batch directory: %w", err)
	}
	if !exists {
		return []*Batch{}, nil
	}

	var paths []string
	err = afero.Walk(l.fs, l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if _, ferr := FormatFor(path); ferr == nil {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk batch directory: %w", err)
	}
	sort.Strings(paths)

	batches := make([]*Batch, 0, len(paths))
	for _, p := range paths {
		b, err := l.load(p)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Items flattens batches into one slice in load order.
func Items(batches []*Batch) []scoring.Item {
	var items []scoring.Item
	for _, b := range batches {
		items = append(items, b.Items...)
	}
	return items
}

func decodeJSON(data []byte, b *Batch) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &b.Items)
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	b.ProjectID, b.Items = env.ProjectID, env.Items
	return nil
}

func decodeJSONL(data []byte, b *Batch) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	for n := 1; ; n++ {
		var item scoring.Item
		err := dec.Decode(&item)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		b.Items = append(b.Items, item)
	}
}

func decodeYAML(data []byte, b *Batch) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		return doc.Decode(&b.Items)
	}
	var env envelope
	if err := doc.Decode(&env); err != nil {
		return err
	}
	b.ProjectID, b.Items = env.ProjectID, env.Items
	return nil
}
