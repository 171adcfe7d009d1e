package model

// Latency is the per-stage wall-clock breakdown of one query.
type Latency struct {
	PlanningMS     float64 `json:"planning_ms"`
	RetrievalMS    float64 `json:"retrieval_ms"`
	ReasoningMS    float64 `json:"reasoning_ms"`
	VerificationMS float64 `json:"verification_ms"`
	TotalMS        float64 `json:"total_ms"`
}

// CitedSource is one source that the final accepted answer actually cites.
type CitedSource struct {
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Excerpt    string     `json:"excerpt,omitempty"`
}

// QueryResponse is the terminal artifact of one query. Either Answer is
// set, or Abstained is true and Answer carries the abstention text.
type QueryResponse struct {
	Answer           string        `json:"answer,omitempty"`
	Abstained        bool          `json:"abstained"`
	AbstentionReason string        `json:"abstention_reason,omitempty"`
	CitedSources     []CitedSource `json:"cited_sources,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
	Latency          Latency       `json:"latency"`
	DataVersion      int64         `json:"data_version"`
}
