// Package plan turns a research question into a schema-checked retrieval
// plan. The planner never retrieves evidence and never answers; its only
// output is the plan.
package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avolkov/quaero/internal/llm"
	"github.com/avolkov/quaero/internal/model"
	"github.com/go-playground/validator/v10"
)

// planMaxAttempts bounds the corrective-retry loop: one initial call plus
// two retries that feed the validation error back to the model.
const planMaxAttempts = 3

// ErrPlanningFailed means no schema-valid plan was produced within the
// attempt budget. The pipeline ends the query in a failed state instead
// of guessing a plan.
var ErrPlanningFailed = errors.New("could not form a retrieval plan")

const plannerSystem = `You are a retrieval planner for a scientific research assistant. Three source types exist:
- document: ingested papers and reports; semantic search, "query" is the search string.
- structured: registered tabular datasets (CSV); use for numbers and tables, "query" describes the lookup.
- live_feed: live bibliographic search on arXiv.org; "query" is an arXiv search query (e.g. "ti:electron", "all:machine learning", "au:smith"). Use for recent or published research.

Given a research question, output a JSON object with a "steps" array. Each step has:
- source_type: "document", "structured", or "live_feed"
- query: the search query or lookup description for that source
- reason: one sentence why this step helps answer the question

If no ingested or live source could plausibly hold the answer, output {"steps": []}. Output ONLY valid JSON, no markdown.`

const plannerUserTmpl = `Research question: %s

Available source types: document, structured, live_feed.

Output your retrieval plan as JSON: {"steps": [{"source_type": "...", "query": "...", "reason": "..."}, ...]}`

// Planner produces retrieval plans via the configured LLM provider.
type Planner struct {
	provider llm.Provider
	validate *validator.Validate
}

// NewPlanner creates a planner.
func NewPlanner(provider llm.Provider) *Planner {
	return &Planner{
		provider: provider,
		validate: validator.New(),
	}
}

// Plan asks the model for a plan and validates it against the schema. On
// validation failure the model is re-asked with the error attached, up to
// planMaxAttempts total calls; after that, ErrPlanningFailed.
func (p *Planner) Plan(ctx context.Context, question model.Question) (model.RetrievalPlan, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: plannerSystem},
		{Role: llm.RoleUser, Content: fmt.Sprintf(plannerUserTmpl, question.Text)},
	}

	var lastErr error
	for attempt := 1; attempt <= planMaxAttempts; attempt++ {
		resp, err := p.provider.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Temperature: 0,
			JSONOnly:    true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return model.RetrievalPlan{}, ctx.Err()
			}
			lastErr = err
			slog.Warn("planner call failed", "attempt", attempt, "question", question.Hash[:8], "error", err)
			continue
		}

		plan, err := p.parsePlan(resp.Content)
		if err == nil {
			return plan, nil
		}

		lastErr = err
		slog.Warn("planner output invalid", "attempt", attempt, "question", question.Hash[:8], "error", err)

		// Feed the model its own output and the validation error so the
		// next attempt can correct it.
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Your previous output was not a valid plan: %v. Output ONLY a corrected JSON object matching the schema.", err)},
		)
	}

	return model.RetrievalPlan{}, fmt.Errorf("%w: %v", ErrPlanningFailed, lastErr)
}

// parsePlan strictly decodes and schema-checks one model output.
func (p *Planner) parsePlan(raw string) (model.RetrievalPlan, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return model.RetrievalPlan{}, fmt.Errorf("empty output")
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	decoder.DisallowUnknownFields()

	var plan model.RetrievalPlan
	if err := decoder.Decode(&plan); err != nil {
		return model.RetrievalPlan{}, fmt.Errorf("decode JSON: %w", err)
	}

	if err := p.validate.Struct(plan); err != nil {
		return model.RetrievalPlan{}, fmt.Errorf("schema check: %w", err)
	}

	for i, step := range plan.Steps {
		if !step.SourceType.Valid() {
			return model.RetrievalPlan{}, fmt.Errorf("step %d: unknown source_type %q", i, step.SourceType)
		}
	}

	return plan, nil
}

// stripCodeFence removes a surrounding markdown fence if the model added
// one despite instructions.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
