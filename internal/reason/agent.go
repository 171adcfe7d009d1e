// Package reason synthesizes an answer strictly from retrieved evidence.
// The agent sees only the question and the evidence set; it must cite
// every assertion or abstain.
package reason

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/avolkov/quaero/internal/llm"
	"github.com/avolkov/quaero/internal/model"
)

// AbstentionMarker is the literal prefix the model uses to abstain. It is
// detected verbatim, so an abstention is structured output, not a guess.
const AbstentionMarker = "INSUFFICIENT_EVIDENCE"

// maxToolRounds bounds the tool-call loop inside one reasoning run.
const maxToolRounds = 5

const reasoningSystem = `You are a scientific reasoning agent. Answer the user's question using ONLY the provided evidence. Every assertion must cite its source inline as [Source <source_id>] using a source_id from the evidence. You know nothing beyond the evidence.

If the evidence is insufficient to answer, reply with exactly:
` + AbstentionMarker + `: <one sentence saying what is missing>

You have a calculator tool: use it for any arithmetic on numbers found in the evidence (unit conversions, sums). If the calculator returns an error, treat that value as unavailable. Never invent numbers.`

const strictReasoningAddendum = `

A verification pass found unsupported statements in a previous answer. Cite only what the evidence text directly supports, sentence by sentence. If you are not sure a statement is directly supported, leave it out. If nothing is directly supported, abstain.`

var citationRe = regexp.MustCompile(`\[Source\s+([\w.:-]+)\]`)

// Result is one reasoning outcome: a cited answer or an abstention.
type Result struct {
	Answer     string
	CitedIDs   []string
	Abstained  bool
	Warnings   []string
	TokensUsed int
}

// Agent runs the evidence-constrained reasoning step.
type Agent struct {
	provider llm.Provider
	tools    *Registry
}

// NewAgent creates an agent with the default tool registry.
func NewAgent(provider llm.Provider) *Agent {
	return &Agent{
		provider: provider,
		tools:    NewRegistry(),
	}
}

// Run produces an answer from the question and evidence. strict carries
// the post-verification instruction used for the single bounded retry.
// An empty evidence set abstains without calling the model at all.
func (a *Agent) Run(ctx context.Context, question model.Question, evidence model.EvidenceSet, strict bool) (*Result, error) {
	if len(evidence) == 0 {
		return &Result{
			Answer:    AbstentionMarker + ": no evidence was retrieved for this question.",
			Abstained: true,
		}, nil
	}

	system := reasoningSystem
	if strict {
		system += strictReasoningAddendum
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Evidence:\n\n%s\n\nQuestion: %s", FormatEvidence(evidence), question.Text)},
	}

	result := &Result{}
	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.provider.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Tools:       a.tools.Specs(),
			Temperature: 0,
		})
		if err != nil {
			return nil, fmt.Errorf("reasoning call: %w", err)
		}
		result.TokensUsed += resp.TokensUsed

		if len(resp.ToolCalls) == 0 {
			return a.finalize(result, resp.Content, evidence), nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			output := a.tools.Invoke(tc.Name, tc.Arguments)
			slog.Debug("tool invoked", "tool", tc.Name, "question", question.Hash[:8])
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	// Tool budget exhausted without a final answer: abstain rather than
	// return a truncated chain of thought.
	result.Answer = AbstentionMarker + ": reasoning exceeded its tool budget before reaching an answer."
	result.Abstained = true
	result.Warnings = append(result.Warnings, fmt.Sprintf("reasoning stopped after %d tool rounds", maxToolRounds))
	return result, nil
}

// finalize classifies the model's answer and filters its citations down
// to evidence that actually exists.
func (a *Agent) finalize(result *Result, content string, evidence model.EvidenceSet) *Result {
	answer := strings.TrimSpace(content)
	if answer == "" {
		result.Answer = AbstentionMarker + ": the model produced no answer."
		result.Abstained = true
		return result
	}

	result.Answer = answer
	if strings.HasPrefix(answer, AbstentionMarker) {
		result.Abstained = true
		return result
	}

	known := make(map[string]bool)
	for _, item := range evidence {
		known[item.SourceID] = true
	}

	seen := make(map[string]bool)
	for _, match := range citationRe.FindAllStringSubmatch(answer, -1) {
		id := match[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if !known[id] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("answer cited unknown source %q; citation ignored", id))
			continue
		}
		result.CitedIDs = append(result.CitedIDs, id)
	}

	return result
}

// FormatEvidence renders the evidence set the way the agent and verifier
// prompts expect: one [Source id] block per item, in set order.
func FormatEvidence(evidence model.EvidenceSet) string {
	parts := make([]string, 0, len(evidence))
	for _, item := range evidence {
		parts = append(parts, fmt.Sprintf("[Source %s]\n%s", item.SourceID, item.Excerpt))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// ExtractCitations returns the distinct source IDs cited in a text, in
// order of first appearance.
func ExtractCitations(text string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, match := range citationRe.FindAllStringSubmatch(text, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			ids = append(ids, match[1])
		}
	}
	return ids
}
