package store

import (
	"strings"
	"testing"

	"github.com/avolkov/quaero/internal/model"
)

const sampleAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2101.00001v1</id>
    <title>Electron  Transport in
  Graphene</title>
    <summary>We study &lt;b&gt;electron&lt;/b&gt; transport.</summary>
    <published>2021-01-01T00:00:00Z</published>
    <author><name>A. Researcher</name></author>
    <author><name>B. Colleague</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/cond-mat/0001001v2</id>
    <title>Old Style Identifier</title>
    <summary>Legacy category paper.</summary>
  </entry>
</feed>`

const errorAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://export.arxiv.org/api/errors#bad_query</id>
    <title>Error</title>
    <summary>malformed query</summary>
  </entry>
</feed>`

func TestParseAtomEntries(t *testing.T) {
	items, err := parseAtomEntries([]byte(sampleAtom))
	if err != nil {
		t.Fatalf("parseAtomEntries failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.SourceID != "2101.00001v1" {
		t.Errorf("unexpected source ID: %s", first.SourceID)
	}
	if first.SourceType != model.SourceLiveFeed {
		t.Errorf("unexpected source type: %s", first.SourceType)
	}
	if !strings.Contains(first.Excerpt, "Title: Electron Transport in Graphene") {
		t.Errorf("expected collapsed title, got %q", first.Excerpt)
	}
	if !strings.Contains(first.Excerpt, "Authors: A. Researcher, B. Colleague") {
		t.Errorf("expected authors line, got %q", first.Excerpt)
	}
	if !strings.Contains(first.Excerpt, "Abstract: We study electron transport.") {
		t.Errorf("expected markup stripped from abstract, got %q", first.Excerpt)
	}

	// Legacy IDs keep a stable citable form without slashes.
	if items[1].SourceID != "cond-mat_0001001v2" {
		t.Errorf("unexpected legacy source ID: %s", items[1].SourceID)
	}
}

func TestParseAtomEntries_ErrorEntrySkipped(t *testing.T) {
	items, err := parseAtomEntries([]byte(errorAtom))
	if err != nil {
		t.Fatalf("parseAtomEntries failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected the Error entry skipped, got %d items", len(items))
	}
}

func TestParseAtomEntries_MalformedXML(t *testing.T) {
	_, err := parseAtomEntries([]byte("<feed><entry>"))
	if err == nil {
		t.Fatal("expected error for malformed XML")
	}
}

func TestEntryID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://arxiv.org/abs/2101.00001v1", "2101.00001v1"},
		{"https://arxiv.org/abs/2101.00001v1", "2101.00001v1"},
		{"http://arxiv.org/abs/cond-mat/0001001", "cond-mat_0001001"},
	}
	for _, tt := range tests {
		if got := entryID(tt.raw); got != tt.want {
			t.Errorf("entryID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := collapseSpace("  a \n b\t c  "); got != "a b c" {
		t.Errorf("unexpected result: %q", got)
	}
}
