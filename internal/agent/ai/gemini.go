package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements ChatModel on the official Google AI SDK. It is the
// default provider: the normalized coordinate convention and quota
// error format the agent relies on are native to the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	callSeq atomic.Uint64
}

// NewGemini creates a Gemini-backed model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Close releases the underlying gRPC connection.
func (g *Gemini) Close() error { return g.client.Close() }

func (g *Gemini) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	model := g.client.GenerativeModel(g.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		model.Tools = buildGeminiTools(req.Tools)
	}

	contents := buildGeminiContents(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: at least one message is required")
	}

	// Multi-turn requests go through a chat session: everything but
	// the newest content is history, the newest is sent.
	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return g.parseResponse(resp), nil
}

func buildGeminiContents(messages []Message) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		content := &genai.Content{}
		switch msg.Role {
		case RoleAssistant:
			content.Role = "model"
		default:
			// Tool results ride the user side in the Gemini API.
			content.Role = "user"
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, genai.Text(msg.Content))
		}
		for _, img := range msg.Images {
			content.Parts = append(content.Parts, genai.ImageData("png", img))
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Args, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, genai.FunctionCall{
				Name: tc.Name,
				Args: args,
			})
		}
		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{
					"result": tr.Content,
					"error":  tr.IsError,
				}
			}
			content.Parts = append(content.Parts, genai.FunctionResponse{
				Name:     tr.Name,
				Response: response,
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result
}

func (g *Gemini) parseResponse(resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				out.Text += string(p)
			case genai.FunctionCall:
				args, err := json.Marshal(p.Args)
				if err != nil {
					args = []byte("{}")
				}
				// Gemini does not assign call IDs; synthesize stable ones.
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:   fmt.Sprintf("call_%s_%d", p.Name, g.callSeq.Add(1)),
					Name: p.Name,
					Args: args,
				})
			}
		}
	}
	return out
}

func buildGeminiTools(tools []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  geminiSchema(t.Schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// geminiSchema converts a raw JSON Schema object into the SDK's typed
// Schema. Unknown or empty schemas collapse to nil, which the API
// treats as "no parameters".
func geminiSchema(raw json.RawMessage) *genai.Schema {
	if len(raw) == 0 {
		return nil
	}
	var node schemaNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}
	s := node.toSchema()
	if s != nil && s.Type == genai.TypeObject && len(s.Properties) == 0 {
		return nil
	}
	return s
}

type schemaNode struct {
	Type        string                 `json:"type"`
	Format      string                 `json:"format"`
	Description string                 `json:"description"`
	Enum        []string               `json:"enum"`
	Properties  map[string]*schemaNode `json:"properties"`
	Required    []string               `json:"required"`
	Items       *schemaNode            `json:"items"`
}

func (n *schemaNode) toSchema() *genai.Schema {
	if n == nil {
		return nil
	}
	s := &genai.Schema{
		Format:      n.Format,
		Description: n.Description,
		Enum:        n.Enum,
		Required:    n.Required,
	}
	switch n.Type {
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	case "object":
		s.Type = genai.TypeObject
	default:
		s.Type = genai.TypeUnspecified
	}
	if len(n.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(n.Properties))
		for name, child := range n.Properties {
			s.Properties[name] = child.toSchema()
		}
	}
	if n.Items != nil {
		s.Items = n.Items.toSchema()
	}
	return s
}
