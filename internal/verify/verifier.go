package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avolkov/quaero/internal/llm"
	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/reason"
	"github.com/go-playground/validator/v10"
)

// verifyMaxAttempts bounds the corrective-retry loop for the
// verification call, mirroring the planner's budget.
const verifyMaxAttempts = 3

const verifierSystem = `You are a verification agent. For each numbered claim, decide whether the cited evidence text DIRECTLY supports the claim. Judge only textual support: a claim is supported when its content can be read off the cited excerpts (including arithmetic over numbers present in them). Do not use outside knowledge.

Output ONLY a JSON object: {"results": [{"claim_id": "...", "supported": true/false, "reason": "one short sentence"}]}. Include every claim exactly once.`

type verdictList struct {
	Results []model.VerificationResult `json:"results" validate:"dive"`
}

// Verifier independently re-checks claims against evidence.
type Verifier struct {
	provider llm.Provider
	validate *validator.Validate
}

// NewVerifier creates a verifier.
func NewVerifier(provider llm.Provider) *Verifier {
	return &Verifier{
		provider: provider,
		validate: validator.New(),
	}
}

// Verify returns one result per claim. A claim without citations is
// unsupported by definition and never reaches the model; the rest are
// judged in a single schema-checked call.
func (v *Verifier) Verify(ctx context.Context, claims []model.Claim, evidence model.EvidenceSet) ([]model.VerificationResult, error) {
	if len(claims) == 0 {
		return []model.VerificationResult{}, nil
	}

	results := make([]model.VerificationResult, len(claims))
	var cited []model.Claim
	for i, claim := range claims {
		if len(claim.Citations) == 0 {
			results[i] = model.VerificationResult{
				ClaimID:   claim.ID,
				Supported: false,
				Reason:    "claim cites no evidence",
			}
			continue
		}
		if dangling := danglingCitations(claim, evidence); len(dangling) > 0 {
			results[i] = model.VerificationResult{
				ClaimID:   claim.ID,
				Supported: false,
				Reason:    fmt.Sprintf("claim cites unknown source(s): %s", strings.Join(dangling, ", ")),
			}
			continue
		}
		cited = append(cited, claim)
	}

	if len(cited) == 0 {
		return results, nil
	}

	verdicts, err := v.judge(ctx, cited, evidence)
	if err != nil {
		return nil, err
	}

	for i, claim := range claims {
		if results[i].ClaimID != "" {
			continue
		}
		if verdict, ok := verdicts[claim.ID]; ok {
			results[i] = verdict
		} else {
			results[i] = model.VerificationResult{
				ClaimID:   claim.ID,
				Supported: false,
				Reason:    "verifier did not address this claim",
			}
		}
	}

	return results, nil
}

// judge runs the verification call with bounded corrective retries.
func (v *Verifier) judge(ctx context.Context, claims []model.Claim, evidence model.EvidenceSet) (map[string]model.VerificationResult, error) {
	var b strings.Builder
	b.WriteString("Evidence:\n\n")
	b.WriteString(reason.FormatEvidence(evidence))
	b.WriteString("\n\nClaims:\n")
	for _, claim := range claims {
		fmt.Fprintf(&b, "- %s (cites %s): %s\n", claim.ID, strings.Join(claim.Citations, ", "), claim.Text)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: verifierSystem},
		{Role: llm.RoleUser, Content: b.String()},
	}

	var lastErr error
	for attempt := 1; attempt <= verifyMaxAttempts; attempt++ {
		resp, err := v.provider.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Temperature: 0,
			JSONOnly:    true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			slog.Warn("verification call failed", "attempt", attempt, "error", err)
			continue
		}

		verdicts, err := v.parseVerdicts(resp.Content)
		if err == nil {
			return verdicts, nil
		}

		lastErr = err
		slog.Warn("verification output invalid", "attempt", attempt, "error", err)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Your previous output was invalid: %v. Output ONLY the corrected JSON object.", err)},
		)
	}

	return nil, fmt.Errorf("verification failed after %d attempts: %w", verifyMaxAttempts, lastErr)
}

func (v *Verifier) parseVerdicts(raw string) (map[string]model.VerificationResult, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")

	decoder := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	decoder.DisallowUnknownFields()

	var list verdictList
	if err := decoder.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if err := v.validate.Struct(list); err != nil {
		return nil, fmt.Errorf("schema check: %w", err)
	}

	verdicts := make(map[string]model.VerificationResult, len(list.Results))
	for _, result := range list.Results {
		verdicts[result.ClaimID] = result
	}
	return verdicts, nil
}

func danglingCitations(claim model.Claim, evidence model.EvidenceSet) []string {
	var dangling []string
	for _, id := range claim.Citations {
		if _, ok := evidence.Find(id); !ok {
			dangling = append(dangling, id)
		}
	}
	return dangling
}
