package reason

import (
	"context"
	"strings"
	"testing"

	"github.com/avolkov/quaero/internal/llm"
	"github.com/avolkov/quaero/internal/model"
)

// scriptedProvider replays canned chat responses in order.
type scriptedProvider struct {
	responses []*llm.ChatResponse
	calls     int
	requests  []llm.ChatRequest
}

func (p *scriptedProvider) Name() string                         { return "scripted" }
func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }
func (p *scriptedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0}, nil
}

func (p *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	resp := p.responses[p.calls%len(p.responses)]
	p.calls++
	return resp, nil
}

func evidenceSet() model.EvidenceSet {
	return model.EvidenceSet{
		{SourceID: "s1", SourceType: model.SourceDocument, Excerpt: "Water boils at 100 degrees Celsius at sea level."},
		{SourceID: "s2", SourceType: model.SourceStructured, Excerpt: "element,melting_point\ntungsten,3422"},
	}
}

func TestAgent_EmptyEvidenceAbstainsWithoutModelCall(t *testing.T) {
	provider := &scriptedProvider{}
	agent := NewAgent(provider)

	result, err := agent.Run(context.Background(), model.NewQuestion("anything"), model.EvidenceSet{}, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Abstained {
		t.Error("expected abstention on empty evidence")
	}
	if provider.calls != 0 {
		t.Errorf("expected zero model calls, got %d", provider.calls)
	}
}

func TestAgent_CitedAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		{Content: "Water boils at 100 degrees Celsius [Source s1].", TokensUsed: 25},
	}}
	agent := NewAgent(provider)

	result, err := agent.Run(context.Background(), model.NewQuestion("boiling point of water?"), evidenceSet(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Abstained {
		t.Fatal("unexpected abstention")
	}
	if len(result.CitedIDs) != 1 || result.CitedIDs[0] != "s1" {
		t.Errorf("expected citation s1, got %v", result.CitedIDs)
	}
	if result.TokensUsed != 25 {
		t.Errorf("expected 25 tokens, got %d", result.TokensUsed)
	}
}

func TestAgent_AbstentionMarkerDetected(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		{Content: AbstentionMarker + ": the evidence does not mention the boiling point."},
	}}
	agent := NewAgent(provider)

	result, err := agent.Run(context.Background(), model.NewQuestion("question"), evidenceSet(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Abstained {
		t.Error("expected abstention")
	}
	if len(result.CitedIDs) != 0 {
		t.Errorf("abstention must not cite sources, got %v", result.CitedIDs)
	}
}

func TestAgent_ToolLoop(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "calculator", Arguments: `{"expression": "2+40"}`}}},
		{Content: "The sum is 42 [Source s2]."},
	}}
	agent := NewAgent(provider)

	result, err := agent.Run(context.Background(), model.NewQuestion("what is 2+40?"), evidenceSet(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Abstained {
		t.Fatal("unexpected abstention")
	}
	if !strings.Contains(result.Answer, "42") {
		t.Errorf("expected answer to carry the computed value, got %q", result.Answer)
	}

	// The second request must contain the tool result message.
	second := provider.requests[1]
	var sawToolResult bool
	for _, msg := range second.Messages {
		if msg.Role == llm.RoleTool && msg.Content == "42" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Error("expected the calculator result fed back to the model")
	}
}

func TestAgent_ToolBudgetExhausted(t *testing.T) {
	// The model keeps calling tools forever; the agent must abstain.
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c", Name: "calculator", Arguments: `{"expression": "1+1"}`}}},
	}}
	agent := NewAgent(provider)

	result, err := agent.Run(context.Background(), model.NewQuestion("question"), evidenceSet(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Abstained {
		t.Error("expected abstention after tool budget exhaustion")
	}
	if provider.calls != maxToolRounds {
		t.Errorf("expected %d calls, got %d", maxToolRounds, provider.calls)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning about the tool budget")
	}
}

func TestAgent_UnknownCitationIgnored(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		{Content: "Fact one [Source s1]. Fact two [Source ghost]."},
	}}
	agent := NewAgent(provider)

	result, err := agent.Run(context.Background(), model.NewQuestion("question"), evidenceSet(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.CitedIDs) != 1 || result.CitedIDs[0] != "s1" {
		t.Errorf("expected only s1 kept, got %v", result.CitedIDs)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected one warning for the unknown citation, got %v", result.Warnings)
	}
}

func TestAgent_StrictModeChangesPrompt(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		{Content: "Answer [Source s1]."},
	}}
	agent := NewAgent(provider)

	_, err := agent.Run(context.Background(), model.NewQuestion("question"), evidenceSet(), true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	system := provider.requests[0].Messages[0].Content
	if !strings.Contains(system, "verification pass") {
		t.Error("expected the strict addendum in the system prompt")
	}
}

func TestExtractCitations(t *testing.T) {
	text := "A [Source s1]. B [Source tab:rates]. A again [Source s1]."
	ids := ExtractCitations(text)
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct citations, got %v", ids)
	}
	if ids[0] != "s1" || ids[1] != "tab:rates" {
		t.Errorf("unexpected order or values: %v", ids)
	}
}

func TestFormatEvidence(t *testing.T) {
	out := FormatEvidence(evidenceSet())
	if !strings.HasPrefix(out, "[Source s1]\n") {
		t.Errorf("unexpected leading block: %q", out)
	}
	if !strings.Contains(out, "\n\n---\n\n[Source s2]\n") {
		t.Errorf("expected separator between blocks: %q", out)
	}
}
