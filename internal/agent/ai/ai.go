package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Message is a single conversation entry in provider-neutral form.
// Images carry raw PNG payloads shown to the model alongside Content.
type Message struct {
	Role        string
	Content     string
	Images      [][]byte
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a model request to execute a tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the outcome of an executed tool call, fed back to the
// model on the next request.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// ToolSpec describes a tool the model may call. Schema is a JSON
// Schema object for the tool arguments.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// GenerateRequest carries one full model turn: system prompt, history,
// and the available tools.
type GenerateRequest struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// GenerateResponse is the model's reply: free text and zero or more
// tool calls to execute.
type GenerateResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// ChatModel is the synchronous boundary to a chat completion provider.
// Implementations must be safe for concurrent use.
type ChatModel interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// Options selects and configures a provider.
type Options struct {
	Provider   string
	Model      string
	APIKey     string
	OllamaHost string
}

// New builds the ChatModel for the configured provider. Gemini is the
// default when Provider is empty.
func New(ctx context.Context, opts Options) (ChatModel, error) {
	switch opts.Provider {
	case "", "gemini":
		return NewGemini(ctx, opts.APIKey, opts.Model)
	case "anthropic":
		return NewAnthropic(opts.APIKey, opts.Model)
	case "openai":
		return NewOpenAI(opts.APIKey, opts.Model)
	case "ollama":
		return NewOllama(opts.OllamaHost, opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Provider)
	}
}
