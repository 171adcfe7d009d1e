package model

// SourceType identifies which evidence store a plan step targets.
type SourceType string

const (
	SourceDocument   SourceType = "document"   // ingested papers/reports, semantic search
	SourceStructured SourceType = "structured" // tabular datasets (CSV)
	SourceLiveFeed   SourceType = "live_feed"  // live bibliographic search (arXiv)
)

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceDocument, SourceStructured, SourceLiveFeed:
		return true
	}
	return false
}

// PlanStep is one retrieval action: where to search and what query.
type PlanStep struct {
	SourceType SourceType `json:"source_type" validate:"required,oneof=document structured live_feed"`
	SourceID   string     `json:"source_id,omitempty"`
	Query      string     `json:"query" validate:"required"`
	Reason     string     `json:"reason,omitempty"`
}

// RetrievalPlan is the ordered, schema-checked output of the planner.
// An empty plan is valid and signals that no retrieval is needed.
type RetrievalPlan struct {
	Steps []PlanStep `json:"steps" validate:"dive"`
}
