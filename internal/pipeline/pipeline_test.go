package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avolkov/quaero/internal/cache"
	"github.com/avolkov/quaero/internal/llm"
	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/plan"
	"github.com/avolkov/quaero/internal/store"
)

// routedProvider dispatches scripted responses per pipeline stage. The
// reasoning agent is the only caller that sends tool specs; the verifier
// is the only other JSON-mode caller besides the planner, told apart by
// its system prompt.
type routedProvider struct {
	planResponses   []string
	reasonResponses []*llm.ChatResponse
	verifyResponses []string
	verifyErr       error

	planCalls   int
	reasonCalls int
	verifyCalls int
}

func (p *routedProvider) Name() string                         { return "routed" }
func (p *routedProvider) IsAvailable(ctx context.Context) bool { return true }
func (p *routedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0}, nil
}

func (p *routedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(req.Tools) > 0 {
		resp := p.reasonResponses[p.reasonCalls%len(p.reasonResponses)]
		p.reasonCalls++
		return resp, nil
	}

	system := req.Messages[0].Content
	if strings.Contains(system, "verification agent") {
		if p.verifyErr != nil {
			return nil, p.verifyErr
		}
		content := p.verifyResponses[p.verifyCalls%len(p.verifyResponses)]
		p.verifyCalls++
		return &llm.ChatResponse{Content: content}, nil
	}

	content := p.planResponses[p.planCalls%len(p.planResponses)]
	p.planCalls++
	return &llm.ChatResponse{Content: content}, nil
}

// countingStore serves fixed document evidence and counts hits.
type countingStore struct {
	items    []model.EvidenceItem
	docErr   error
	docCalls atomic.Int32
}

func (s *countingStore) SearchDocuments(ctx context.Context, query, sourceID string) ([]model.EvidenceItem, error) {
	s.docCalls.Add(1)
	return s.items, s.docErr
}

func (s *countingStore) ReadStructured(ctx context.Context, sourceID, query string) ([]model.EvidenceItem, error) {
	return nil, store.ErrSourceUnavailable
}

func (s *countingStore) SearchLiveFeed(ctx context.Context, query string) ([]model.EvidenceItem, error) {
	return nil, store.ErrSourceUnavailable
}

const docPlan = `{"steps": [{"source_type": "document", "query": "constants", "reason": "ingested data"}]}`

const allSupported = `{"results": [{"claim_id": "c1", "supported": true, "reason": "stated in evidence"}]}`

func docEvidence() []model.EvidenceItem {
	return []model.EvidenceItem{
		{SourceID: "s1", SourceType: model.SourceDocument, Excerpt: "The first constant is 2 and the second is 40."},
	}
}

func testPipeline(provider llm.Provider, st store.Store, evidenceCache *cache.EvidenceCache, versions store.VersionSource) *Pipeline {
	return NewWithDeps(provider, st, evidenceCache, versions, model.PipelineConfig{
		PlanningTimeout:      5 * time.Second,
		RetrievalTimeout:     5 * time.Second,
		ReasoningTimeout:     5 * time.Second,
		VerificationTimeout:  5 * time.Second,
		QueryTimeout:         20 * time.Second,
		MaxConcurrentQueries: 4,
	}, 2)
}

func TestPipeline_AnswerWithCalculator(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{docPlan},
		reasonResponses: []*llm.ChatResponse{
			{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "calculator", Arguments: `{"expression": "2+40"}`}}},
			{Content: "The sum of the constants is 42 [Source s1]."},
		},
		verifyResponses: []string{allSupported},
	}
	st := &countingStore{items: docEvidence()}

	p := testPipeline(provider, st, nil, store.NewMemoryVersionSource())

	response, err := p.Answer(context.Background(), "What is the sum of the two constants?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if response.Abstained {
		t.Fatalf("unexpected abstention: %+v", response)
	}
	if !strings.Contains(response.Answer, "42") {
		t.Errorf("expected computed value in answer, got %q", response.Answer)
	}
	if len(response.CitedSources) != 1 || response.CitedSources[0].SourceID != "s1" {
		t.Errorf("expected cited source s1, got %+v", response.CitedSources)
	}
	if response.DataVersion != 1 {
		t.Errorf("expected data version 1, got %d", response.DataVersion)
	}
	if len(response.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", response.Warnings)
	}
	if response.Latency.TotalMS <= 0 {
		t.Error("expected positive total latency")
	}
}

func TestPipeline_EmptyPlanAbstains(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{`{"steps": []}`},
	}
	st := &countingStore{}

	p := testPipeline(provider, st, nil, store.NewMemoryVersionSource())

	response, err := p.Answer(context.Background(), "What is my cat's name?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if !response.Abstained {
		t.Fatal("expected abstention for an unanswerable question")
	}
	if response.Answer != "" {
		t.Errorf("abstention must not carry an answer, got %q", response.Answer)
	}
	if response.AbstentionReason == "" {
		t.Error("expected an abstention reason")
	}
	if st.docCalls.Load() != 0 {
		t.Error("empty plan must not touch the store")
	}
	if provider.reasonCalls != 0 {
		t.Error("empty evidence must abstain without a reasoning call")
	}
	if provider.verifyCalls != 0 {
		t.Error("abstention must skip verification")
	}
}

func TestPipeline_PlanningFailure(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{`garbage`},
	}
	p := testPipeline(provider, &countingStore{}, nil, store.NewMemoryVersionSource())

	_, err := p.Answer(context.Background(), "question")
	if !errors.Is(err, plan.ErrPlanningFailed) {
		t.Fatalf("expected ErrPlanningFailed, got %v", err)
	}
}

func TestPipeline_NoProvider(t *testing.T) {
	p := testPipeline(nil, &countingStore{}, nil, store.NewMemoryVersionSource())

	_, err := p.Answer(context.Background(), "question")
	if !errors.Is(err, ErrLLMNotConfigured) {
		t.Fatalf("expected ErrLLMNotConfigured, got %v", err)
	}
}

func TestPipeline_CacheHitSkipsRetrieval(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{docPlan},
		reasonResponses: []*llm.ChatResponse{
			{Content: "The first constant is 2 [Source s1]."},
		},
		verifyResponses: []string{allSupported},
	}
	st := &countingStore{items: docEvidence()}
	evidenceCache := cache.NewEvidenceCache(time.Minute, "", 0)

	p := testPipeline(provider, st, evidenceCache, store.NewMemoryVersionSource())

	question := "What is the first constant?"
	if _, err := p.Answer(context.Background(), question); err != nil {
		t.Fatalf("first Answer failed: %v", err)
	}
	if _, err := p.Answer(context.Background(), question); err != nil {
		t.Fatalf("second Answer failed: %v", err)
	}

	if st.docCalls.Load() != 1 {
		t.Errorf("expected 1 store hit across both queries, got %d", st.docCalls.Load())
	}
}

func TestPipeline_IngestionInvalidatesCache(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{docPlan},
		reasonResponses: []*llm.ChatResponse{
			{Content: "The first constant is 2 [Source s1]."},
		},
		verifyResponses: []string{allSupported},
	}
	st := &countingStore{items: docEvidence()}
	evidenceCache := cache.NewEvidenceCache(time.Minute, "", 0)
	versions := store.NewMemoryVersionSource()

	p := testPipeline(provider, st, evidenceCache, versions)

	question := "What is the first constant?"
	first, err := p.Answer(context.Background(), question)
	if err != nil {
		t.Fatal(err)
	}

	versions.RegisterIngestion()

	second, err := p.Answer(context.Background(), question)
	if err != nil {
		t.Fatal(err)
	}

	if st.docCalls.Load() != 2 {
		t.Errorf("expected fresh retrieval after ingestion, got %d store hits", st.docCalls.Load())
	}
	if first.DataVersion != 1 || second.DataVersion != 2 {
		t.Errorf("expected versions 1 then 2, got %d and %d", first.DataVersion, second.DataVersion)
	}
}

func TestPipeline_PartialRetrievalNotCached(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{`{"steps": [
			{"source_type": "document", "query": "q", "reason": "r"},
			{"source_type": "live_feed", "query": "q", "reason": "r"}
		]}`},
		reasonResponses: []*llm.ChatResponse{
			{Content: "The first constant is 2 [Source s1]."},
		},
		verifyResponses: []string{allSupported},
	}
	st := &countingStore{items: docEvidence()}
	evidenceCache := cache.NewEvidenceCache(time.Minute, "", 0)

	p := testPipeline(provider, st, evidenceCache, store.NewMemoryVersionSource())

	question := "What is the first constant?"
	response, err := p.Answer(context.Background(), question)
	if err != nil {
		t.Fatal(err)
	}
	if len(response.Warnings) == 0 {
		t.Fatal("expected a warning for the failed feed step")
	}

	// The degraded evidence set must not be served to the next query.
	if _, err := p.Answer(context.Background(), question); err != nil {
		t.Fatal(err)
	}
	if st.docCalls.Load() != 2 {
		t.Errorf("expected re-retrieval after a degraded run, got %d store hits", st.docCalls.Load())
	}
}

func TestPipeline_UnsupportedClaimTriggersOneRetry(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{docPlan},
		reasonResponses: []*llm.ChatResponse{
			{Content: "The first constant is 3 [Source s1]."},
			{Content: "The first constant is 2 [Source s1]."},
		},
		verifyResponses: []string{
			`{"results": [{"claim_id": "c1", "supported": false, "reason": "evidence says 2"}]}`,
			allSupported,
		},
	}
	st := &countingStore{items: docEvidence()}

	p := testPipeline(provider, st, nil, store.NewMemoryVersionSource())

	response, err := p.Answer(context.Background(), "What is the first constant?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if provider.reasonCalls != 2 {
		t.Errorf("expected exactly one reasoning retry, got %d calls", provider.reasonCalls)
	}
	if provider.verifyCalls != 2 {
		t.Errorf("expected two verification passes, got %d", provider.verifyCalls)
	}
	if !strings.Contains(response.Answer, "2") {
		t.Errorf("expected the corrected answer, got %q", response.Answer)
	}
	if len(response.Warnings) != 0 {
		t.Errorf("supported retry should leave no warnings, got %v", response.Warnings)
	}
}

func TestPipeline_StillUnsupportedBecomesWarning(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{docPlan},
		reasonResponses: []*llm.ChatResponse{
			{Content: "The first constant is 3 [Source s1]."},
		},
		verifyResponses: []string{
			`{"results": [{"claim_id": "c1", "supported": false, "reason": "evidence says 2"}]}`,
		},
	}
	st := &countingStore{items: docEvidence()}

	p := testPipeline(provider, st, nil, store.NewMemoryVersionSource())

	response, err := p.Answer(context.Background(), "What is the first constant?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if provider.reasonCalls != 2 {
		t.Errorf("expected one retry only, got %d reasoning calls", provider.reasonCalls)
	}
	if len(response.Warnings) == 0 {
		t.Error("expected warnings for the still-unsupported claim")
	}
	if response.Abstained {
		t.Error("an unverified answer is returned with warnings, not abstained")
	}
}

func TestPipeline_VerifierFailureDegrades(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{docPlan},
		reasonResponses: []*llm.ChatResponse{
			{Content: "The first constant is 2 [Source s1]."},
		},
		verifyErr: errors.New("verifier down"),
	}
	st := &countingStore{items: docEvidence()}

	p := testPipeline(provider, st, nil, store.NewMemoryVersionSource())

	response, err := p.Answer(context.Background(), "What is the first constant?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if response.Abstained {
		t.Error("verifier failure must not abstain the answer")
	}
	var sawWarning bool
	for _, w := range response.Warnings {
		if strings.Contains(w, "verification unavailable") {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Errorf("expected a verification warning, got %v", response.Warnings)
	}
}

func TestPipeline_AllRetrievalFailsAbstains(t *testing.T) {
	provider := &routedProvider{
		planResponses: []string{docPlan},
	}
	st := &countingStore{docErr: store.ErrSourceUnavailable}

	p := testPipeline(provider, st, nil, store.NewMemoryVersionSource())

	response, err := p.Answer(context.Background(), "question")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if !response.Abstained {
		t.Error("expected abstention when every retrieval step failed")
	}
	if len(response.Warnings) == 0 {
		t.Error("expected retrieval warnings")
	}
}
