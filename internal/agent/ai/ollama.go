package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// Ollama implements ChatModel against a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama creates an Ollama-backed model. No API key is needed; the
// host defaults to the standard local daemon.
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen3:4b"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}
	httpClient := &http.Client{
		Timeout: 5 * time.Minute, // local inference can be slow
	}
	return &Ollama{
		client: api.NewClient(parsedURL, httpClient),
		model:  model,
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	chatReq := &api.ChatRequest{
		Model:    o.model,
		Messages: buildOllamaMessages(req),
	}
	stream := false
	chatReq.Stream = &stream
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = buildOllamaTools(req.Tools)
	}

	out := &GenerateResponse{}
	callSeq := 0
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.Text += resp.Message.Content
		for _, tc := range resp.Message.ToolCalls {
			callSeq++
			args, err := json.Marshal(tc.Function.Arguments.ToMap())
			if err != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   fmt.Sprintf("ollama-call-%d-%d", time.Now().UnixNano(), callSeq),
				Name: tc.Function.Name,
				Args: args,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return out, nil
}

func buildOllamaMessages(req *GenerateRequest) []api.Message {
	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Content != "" {
				messages = append(messages, api.Message{Role: "system", Content: msg.Content})
			}

		case RoleAssistant:
			m := api.Message{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args := api.NewToolCallFunctionArguments()
				var argsMap map[string]any
				if err := json.Unmarshal(tc.Args, &argsMap); err == nil {
					for k, v := range argsMap {
						args.Set(k, v)
					}
				}
				m.ToolCalls = append(m.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			if m.Content != "" || len(m.ToolCalls) > 0 {
				messages = append(messages, m)
			}

		case RoleTool:
			for _, tr := range msg.ToolResults {
				messages = append(messages, api.Message{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
					ToolName:   tr.Name,
				})
			}

		default:
			// User and observation content.
			m := api.Message{Role: "user", Content: msg.Content}
			for _, img := range msg.Images {
				m.Images = append(m.Images, api.ImageData(img))
			}
			messages = append(messages, m)
		}
	}
	return messages
}

func buildOllamaTools(tools []ToolSpec) api.Tools {
	result := make(api.Tools, 0, len(tools))
	for _, tool := range tools {
		var schemaRaw map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaRaw); err != nil {
			continue
		}

		params := api.ToolFunctionParameters{Type: "object"}
		if props, ok := schemaRaw["properties"].(map[string]any); ok {
			propsMap := api.NewToolPropertiesMap()
			for name, propRaw := range props {
				if propObj, ok := propRaw.(map[string]any); ok {
					propsMap.Set(name, ollamaProperty(propObj))
				}
			}
			params.Properties = propsMap
		}
		if required, ok := schemaRaw["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					params.Required = append(params.Required, s)
				}
			}
		}

		result = append(result, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

func ollamaProperty(prop map[string]any) api.ToolProperty {
	result := api.ToolProperty{}
	if typeVal, ok := prop["type"].(string); ok {
		result.Type = api.PropertyType{typeVal}
	}
	if desc, ok := prop["description"].(string); ok {
		result.Description = desc
	}
	if enum, ok := prop["enum"].([]any); ok {
		result.Enum = enum
	}
	if items, ok := prop["items"]; ok {
		result.Items = items
	}
	return result
}

// CheckOllamaAvailable reports whether an Ollama server answers at the
// given host.
func CheckOllamaAvailable(baseURL string) bool {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
