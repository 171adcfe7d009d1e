package model

// Claim is one sentence-level assertion extracted from the reasoning
// output, with the evidence IDs it cites. A claim with zero citations is
// only valid when the whole response is an abstention.
type Claim struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
	Sentence  int      `json:"sentence"` // sentence index in the answer (0-based)
}

// VerificationResult records whether a single claim is textually supported
// by its cited evidence. Produced fresh per query, never persisted.
type VerificationResult struct {
	ClaimID   string `json:"claim_id" validate:"required"`
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
}
