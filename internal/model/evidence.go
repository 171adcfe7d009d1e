package model

// Locator points at the position of an excerpt inside its source.
// Only the fields meaningful for the source type are set: page for
// documents, rows for structured tables, offset for feed entries.
type Locator struct {
	Page   int `json:"page,omitempty"`
	Row    int `json:"row,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// EvidenceItem is one retrieved excerpt. Immutable once produced; the
// source attribution must survive unchanged into the final response.
type EvidenceItem struct {
	SourceID           string     `json:"source_id"`
	SourceType         SourceType `json:"source_type"`
	Excerpt            string     `json:"excerpt"`
	Locator            Locator    `json:"locator"`
	Score              float64    `json:"score,omitempty"`
	RetrievalLatencyMS float64    `json:"retrieval_latency_ms"`
}

// EvidenceSet is the ordered result of executing a full plan. Order follows
// plan order so that citation numbering is reproducible across runs.
type EvidenceSet []EvidenceItem

// SourceIDs returns the distinct source IDs in set order.
func (s EvidenceSet) SourceIDs() []string {
	seen := make(map[string]bool, len(s))
	var ids []string
	for _, item := range s {
		if !seen[item.SourceID] {
			seen[item.SourceID] = true
			ids = append(ids, item.SourceID)
		}
	}
	return ids
}

// Find returns the first item with the given source ID.
func (s EvidenceSet) Find(sourceID string) (EvidenceItem, bool) {
	for _, item := range s {
		if item.SourceID == sourceID {
			return item, true
		}
	}
	return EvidenceItem{}, false
}

// EquivalentTo compares two sets ignoring the latency fields. Two
// executions of the same plan against unchanged data are equivalent.
func (s EvidenceSet) EquivalentTo(other EvidenceSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		a, b := s[i], other[i]
		if a.SourceID != b.SourceID || a.SourceType != b.SourceType ||
			a.Excerpt != b.Excerpt || a.Locator != b.Locator || a.Score != b.Score {
			return false
		}
	}
	return true
}
