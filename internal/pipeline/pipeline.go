// Package pipeline orchestrates one query end to end: plan, retrieve,
// reason, verify, assemble. Every stage runs under its own deadline and
// the whole query under an overall one.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avolkov/quaero/internal/cache"
	"github.com/avolkov/quaero/internal/exec"
	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/plan"
	"github.com/avolkov/quaero/internal/reason"
	"github.com/avolkov/quaero/internal/store"
	"github.com/avolkov/quaero/internal/verify"
	"golang.org/x/sync/semaphore"
)

// Stage names used in logs and error messages.
const (
	stagePlanning     = "planning"
	stageRetrieval    = "retrieval"
	stageReasoning    = "reasoning"
	stageVerification = "verification"
)

// maxExcerptInResponse caps the evidence excerpt echoed back per cited
// source; the full text stays in the store.
const maxExcerptInResponse = 200

// Pipeline runs queries. Safe for concurrent use; MaxConcurrentQueries
// bounds how many run at once, later arrivals wait.
type Pipeline struct {
	planner  *plan.Planner
	executor *exec.Executor
	agent    *reason.Agent
	verifier *verify.Verifier
	cache    *cache.EvidenceCache // nil disables caching
	versions store.VersionSource
	sem      *semaphore.Weighted
	cfg      model.PipelineConfig
}

// Versions exposes the pipeline's data-version counter so the ingestion
// path can bump it.
func (p *Pipeline) Versions() store.VersionSource {
	return p.versions
}

// Ready reports whether the pipeline can take queries, which requires a
// configured language model.
func (p *Pipeline) Ready() bool {
	return p.planner != nil
}

// Answer runs one question through the full pipeline and returns the
// terminal response. The only error cases are a missing provider, a
// planning failure, and deadline or cancellation; everything else
// degrades into the response's warnings.
func (p *Pipeline) Answer(ctx context.Context, questionText string) (*model.QueryResponse, error) {
	if p.planner == nil {
		return nil, ErrLLMNotConfigured
	}

	// Backpressure: wait for a slot rather than fail fast. The caller's
	// context still bounds the wait.
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, classify("admission", err)
	}
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	totalStart := time.Now()
	question := model.NewQuestion(questionText)

	// The data version is snapshotted exactly once. Ingestions that land
	// mid-query do not change what this query sees or how it is cached.
	version := p.versions.Current()

	log := slog.With("question", question.Hash[:8], "data_version", version)
	log.Info("query started")

	response := &model.QueryResponse{DataVersion: version}

	retrievalPlan, err := p.runPlanning(ctx, question, response)
	if err != nil {
		return nil, err
	}

	evidence, err := p.runRetrieval(ctx, question, version, retrievalPlan, response)
	if err != nil {
		return nil, err
	}

	result, err := p.runReasoning(ctx, question, evidence, false, response)
	if err != nil {
		return nil, err
	}

	result, err = p.runVerification(ctx, question, evidence, result, response)
	if err != nil {
		return nil, err
	}

	p.assemble(response, result, evidence)
	response.Latency.TotalMS = msSince(totalStart)

	log.Info("query finished",
		"abstained", response.Abstained,
		"cited_sources", len(response.CitedSources),
		"warnings", len(response.Warnings),
		"total_ms", response.Latency.TotalMS)
	return response, nil
}

func (p *Pipeline) runPlanning(ctx context.Context, question model.Question, response *model.QueryResponse) (model.RetrievalPlan, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.PlanningTimeout)
	defer cancel()

	start := time.Now()
	retrievalPlan, err := p.planner.Plan(stageCtx, question)
	response.Latency.PlanningMS = msSince(start)
	if err != nil {
		return model.RetrievalPlan{}, classify(stagePlanning, err)
	}

	slog.Debug("plan formed", "question", question.Hash[:8], "steps", len(retrievalPlan.Steps))
	return retrievalPlan, nil
}

// runRetrieval serves evidence from the cache when a set stored under the
// same question and data version exists, and executes the plan otherwise.
// Only complete sets are cached: a run that degraded on any step is not
// worth replaying.
func (p *Pipeline) runRetrieval(ctx context.Context, question model.Question, version int64, retrievalPlan model.RetrievalPlan, response *model.QueryResponse) (model.EvidenceSet, error) {
	start := time.Now()

	if p.cache != nil {
		if set, ok := p.cache.Get(question.Hash, version); ok {
			response.Latency.RetrievalMS = msSince(start)
			slog.Debug("evidence cache hit", "question", question.Hash[:8], "items", len(set))
			return set, nil
		}
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.RetrievalTimeout)
	defer cancel()

	evidence, warnings := p.executor.Execute(stageCtx, retrievalPlan)
	response.Latency.RetrievalMS = msSince(start)
	response.Warnings = append(response.Warnings, warnings...)

	if err := ctx.Err(); err != nil {
		return nil, classify(stageRetrieval, err)
	}

	if p.cache != nil && len(warnings) == 0 {
		if err := p.cache.Put(question.Hash, version, evidence); err != nil {
			slog.Warn("evidence cache write failed", "question", question.Hash[:8], "error", err)
		}
	}
	return evidence, nil
}

func (p *Pipeline) runReasoning(ctx context.Context, question model.Question, evidence model.EvidenceSet, strict bool, response *model.QueryResponse) (*reason.Result, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.ReasoningTimeout)
	defer cancel()

	start := time.Now()
	result, err := p.agent.Run(stageCtx, question, evidence, strict)
	response.Latency.ReasoningMS += msSince(start)
	if err != nil {
		return nil, classify(stageReasoning, err)
	}

	response.Warnings = append(response.Warnings, result.Warnings...)
	return result, nil
}

// runVerification decomposes the answer into claims, checks each against
// the evidence, and grants one stricter reasoning retry when anything
// fails. Claims still unsupported after the retry become warnings; a
// broken verifier downgrades to a warning rather than failing the query.
func (p *Pipeline) runVerification(ctx context.Context, question model.Question, evidence model.EvidenceSet, result *reason.Result, response *model.QueryResponse) (*reason.Result, error) {
	if result.Abstained {
		return result, nil
	}

	unsupported, err := p.verifyOnce(ctx, result.Answer, evidence, response)
	if err != nil {
		return nil, err
	}
	if len(unsupported) == 0 {
		return result, nil
	}

	slog.Info("verification found unsupported claims, retrying reasoning",
		"question", question.Hash[:8], "unsupported", len(unsupported))

	retried, err := p.runReasoning(ctx, question, evidence, true, response)
	if err != nil {
		return nil, err
	}
	result = retried
	if result.Abstained {
		return result, nil
	}

	unsupported, err = p.verifyOnce(ctx, result.Answer, evidence, response)
	if err != nil {
		return nil, err
	}
	for _, v := range unsupported {
		response.Warnings = append(response.Warnings,
			fmt.Sprintf("unverified claim %s: %s", v.ClaimID, v.Reason))
	}
	return result, nil
}

// verifyOnce runs a single verification pass and returns the failed
// verdicts. An empty result means every claim passed, there was nothing
// to check, or the verifier itself was unavailable.
func (p *Pipeline) verifyOnce(ctx context.Context, answer string, evidence model.EvidenceSet, response *model.QueryResponse) ([]model.VerificationResult, error) {
	claims := verify.DecomposeClaims(answer)
	if len(claims) == 0 {
		return nil, nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.VerificationTimeout)
	defer cancel()

	start := time.Now()
	results, err := p.verifier.Verify(stageCtx, claims, evidence)
	response.Latency.VerificationMS += msSince(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, classify(stageVerification, ctxErr)
		}
		response.Warnings = append(response.Warnings,
			fmt.Sprintf("verification unavailable: %v", err))
		return nil, nil
	}

	var failed []model.VerificationResult
	for _, r := range results {
		if !r.Supported {
			failed = append(failed, r)
		}
	}
	return failed, nil
}

// assemble fills the answer, abstention fields and cited sources from the
// final reasoning result.
func (p *Pipeline) assemble(response *model.QueryResponse, result *reason.Result, evidence model.EvidenceSet) {
	if result.Abstained {
		response.Abstained = true
		response.AbstentionReason = abstentionReason(result.Answer)
		return
	}

	response.Answer = result.Answer
	for _, id := range result.CitedIDs {
		item, ok := evidence.Find(id)
		if !ok {
			continue
		}
		excerpt := item.Excerpt
		if len(excerpt) > maxExcerptInResponse {
			excerpt = excerpt[:maxExcerptInResponse] + "…"
		}
		response.CitedSources = append(response.CitedSources, model.CitedSource{
			SourceID:   item.SourceID,
			SourceType: item.SourceType,
			Excerpt:    excerpt,
		})
	}
}

// abstentionReason strips the marker prefix off an abstention answer,
// leaving the human-readable explanation.
func abstentionReason(answer string) string {
	s := strings.TrimSpace(answer)
	s = strings.TrimPrefix(s, reason.AbstentionMarker)
	s = strings.TrimLeft(s, ": ")
	if s == "" {
		return "the available evidence does not answer the question"
	}
	return s
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
