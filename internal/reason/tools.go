package reason

import (
	"encoding/json"
	"fmt"

	"github.com/avolkov/quaero/internal/llm"
)

// ToolFunc is a pure function invoked by the agent on the model's behalf.
// It performs no retrieval and has no side effects beyond its result.
type ToolFunc func(args map[string]any) (string, error)

// Tool pairs the model-visible spec with its implementation.
type Tool struct {
	Spec llm.ToolSpec
	Fn   ToolFunc
}

// Registry is the capability table: tools the reasoning agent may invoke,
// keyed by name. Lookup by name keeps the tool boundary auditable.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns a registry holding the calculator.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.Register(Tool{
		Spec: llm.ToolSpec{
			Name:        "calculator",
			Description: "Evaluate a mathematical expression. Input a string with numbers and + - * / ** ( ). Use for arithmetic on retrieved numbers.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "Math expression, e.g. '2.5 * 10' or '(100 + 50) / 2'",
					},
				},
				"required": []string{"expression"},
			},
		},
		Fn: func(args map[string]any) (string, error) {
			expression, _ := args["expression"].(string)
			result, err := Evaluate(expression)
			if err != nil {
				return "", err
			}
			return FormatResult(result), nil
		},
	})
	return r
}

// Register adds a tool to the table.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Spec.Name] = tool
}

// Specs returns the model-visible tool specs.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec)
	}
	return specs
}

// Invoke runs the named tool with raw JSON arguments. Every failure mode
// comes back as an error string the model can read; the query never
// crashes on a bad tool call.
func (r *Registry) Invoke(name string, rawArgs string) string {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name)
	}

	args := make(map[string]any)
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Sprintf("error: malformed tool arguments: %v", err)
		}
	}

	result, err := tool.Fn(args)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return result
}
