package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/avolkov/quaero/internal/model"
	"gopkg.in/yaml.v3"
)

// StructuredSource is one registered table in the sources manifest.
type StructuredSource struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Path  string `yaml:"path"`
}

type sourcesManifest struct {
	Structured []StructuredSource `yaml:"structured"`
}

// TableRegistry reads registered CSV tables. Retrieval is a head read:
// column names plus up to maxRows rows rendered as text, which is enough
// for the reasoning agent to pick out reported values. No NL-to-SQL.
type TableRegistry struct {
	sources []StructuredSource
	maxRows int
}

// LoadTableRegistry parses the yaml sources manifest.
func LoadTableRegistry(manifestPath string, maxRows int) (*TableRegistry, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest sourcesManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	return NewTableRegistry(manifest.Structured, maxRows), nil
}

// NewTableRegistry builds a registry from an in-memory source list.
func NewTableRegistry(sources []StructuredSource, maxRows int) *TableRegistry {
	if maxRows <= 0 {
		maxRows = 20
	}
	return &TableRegistry{sources: sources, maxRows: maxRows}
}

// Sources returns the registered tables.
func (r *TableRegistry) Sources() []StructuredSource {
	return r.sources
}

// Read returns one evidence item per readable table. An empty sourceID
// reads all registered tables; an unknown sourceID is an error.
func (r *TableRegistry) Read(ctx context.Context, sourceID string) ([]model.EvidenceItem, error) {
	selected := r.sources
	if sourceID != "" {
		selected = nil
		for _, src := range r.sources {
			if src.ID == sourceID {
				selected = []StructuredSource{src}
				break
			}
		}
		if selected == nil {
			return nil, fmt.Errorf("unknown structured source: %s", sourceID)
		}
	}

	var items []model.EvidenceItem
	for _, src := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		excerpt, rows, err := r.readTable(src.Path)
		if err != nil {
			// One unreadable table does not hide the others.
			continue
		}
		items = append(items, model.EvidenceItem{
			SourceID:   src.ID,
			SourceType: model.SourceStructured,
			Excerpt:    excerpt,
			Locator:    model.Locator{Row: rows},
		})
	}

	if sourceID != "" && len(items) == 0 {
		return nil, fmt.Errorf("structured source %s unreadable", sourceID)
	}
	return items, nil
}

// readTable renders the header and head rows of a CSV file as text.
func (r *TableRegistry) readTable(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open table: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	header, err := reader.Read()
	if err != nil {
		return "", 0, fmt.Errorf("read header: %w", err)
	}

	var b strings.Builder
	b.WriteString("Columns: ")
	b.WriteString(strings.Join(header, ", "))
	b.WriteString("\n")

	rows := 0
	for rows < r.maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip bad lines
		}
		b.WriteString(strings.Join(record, ", "))
		b.WriteString("\n")
		rows++
	}

	return strings.TrimRight(b.String(), "\n"), rows, nil
}
