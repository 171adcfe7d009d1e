package llm

import (
	"context"

	"github.com/avolkov/quaero/internal/model"
)

// Message roles used across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages may request tool invocations
	ToolCallID string     // set on tool result messages
	Name       string     // tool name on tool result messages
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON argument object
}

// ToolSpec describes a tool the model may call. Parameters is a JSON
// Schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is one chat completion call.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
	MaxTokens   int
	JSONOnly    bool // ask the provider for a JSON object response
}

// ChatResponse is the model's reply: either content, or tool calls to run
// before continuing the exchange.
type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Model      string
	TokensUsed int
}

// Provider is the language-model boundary. The pipeline depends only on
// this contract: one chat call type (planning, reasoning with tools,
// verification all go through Chat) and one embedding call type for
// document search.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Chat performs one chat completion call.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed returns the embedding vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// IsAvailable checks if the provider is configured and reachable.
	IsAvailable(ctx context.Context) bool
}

// Config holds LLM provider configuration.
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// EmbeddingModel for query embeddings
	EmbeddingModel string

	// APIKey for OpenAI-compatible endpoints
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, Groq)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       "", // Disabled by default
		Model:          "",
		EmbeddingModel: "text-embedding-3-small",
		Timeout:        60,
		MaxTokens:      1500,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config.
func ConfigFromModel(mc model.LLMConfig) Config {
	return Config{
		Provider:       mc.Provider,
		Model:          mc.Model,
		EmbeddingModel: mc.EmbeddingModel,
		APIKey:         mc.APIKey,
		BaseURL:        mc.BaseURL,
		Timeout:        mc.Timeout,
		MaxTokens:      mc.MaxTokens,
		HTTPProxy:      mc.HTTPProxy,
		HTTPSProxy:     mc.HTTPSProxy,
		NoProxy:        mc.NoProxy,
	}
}
