package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

type action string

const (
	chatCompletion  action = "chat_completion"
	createEmbedding action = "create_embedding"
)

// Definition describes the OpenAI integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "openai",
		Name:        "OpenAI",
		Description: "Generate text completions and embeddings with OpenAI models",
		Category:    schema.CategoryAI,
		AuthType:    schema.AuthAPIKey,
		BaseURL:     "https://api.openai.com/v1",
		APIKey:      &schema.APIKeyConfig{HeaderName: "Authorization", Prefix: "Bearer"},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(chatCompletion),
				Name:        "Chat Completion",
				Description: "Answer a prompt, optionally with a system message",
				InputSchema: map[string]schema.FieldSchema{
					"prompt":      {Type: schema.TypeString, Description: "User message; ignored when messages is set"},
					"system":      {Type: schema.TypeString},
					"messages":    {Type: schema.TypeArray, Description: "Full chat history as {role, content} objects"},
					"model":       {Type: schema.TypeString, Default: "gpt-4o-mini"},
					"temperature": {Type: schema.TypeNumber},
					"max_tokens":  {Type: schema.TypeInteger},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"content":       {Type: schema.TypeString},
					"finish_reason": {Type: schema.TypeString},
					"model":         {Type: schema.TypeString},
					"usage":         {Type: schema.TypeObject},
				},
			},
			{
				ID:          string(createEmbedding),
				Name:        "Create Embedding",
				Description: "Embed a piece of text",
				InputSchema: map[string]schema.FieldSchema{
					"input": {Type: schema.TypeString, Required: true},
					"model": {Type: schema.TypeString, Default: "text-embedding-3-small"},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"embedding":  {Type: schema.TypeArray},
					"dimensions": {Type: schema.TypeInteger},
					"usage":      {Type: schema.TypeObject},
				},
			},
		},
	}
}

// OpenAIError is the error object OpenAI wraps in {"error": ...}.
type OpenAIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       any    `json:"code"`
	StatusCode int    `json:"-"`
}

func (e *OpenAIError) Error() string {
	msg := fmt.Sprintf("OpenAI API error: %s", e.Message)
	if e.Code != nil {
		msg += fmt.Sprintf(" [%v]", e.Code)
	}
	return msg + fmt.Sprintf(" (status %d)", e.StatusCode)
}

// ParseError converts a non-2xx response into an *OpenAIError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var body struct {
		Error OpenAIError `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Error.Message == "" {
		body.Error.Message = http.StatusText(resp.StatusCode)
	}
	body.Error.StatusCode = resp.StatusCode
	return &body.Error
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u usage) output() map[string]any {
	return map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
}

// OpenAIIntegration implements api.Adapter for the OpenAI API.
type OpenAIIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewOpenAIIntegration creates a new OpenAI integration.
func NewOpenAIIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, nil)
	if err != nil {
		return nil, err
	}

	o := &OpenAIIntegration{BaseAdapter: base}
	o.handlers = api.HandlerTable[action]{
		chatCompletion:  o.chatCompletion,
		createEmbedding: o.createEmbedding,
	}
	return o, nil
}

// ExecuteAction runs a named action.
func (o *OpenAIIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, o.BaseAdapter, actionID, actx, o.handlers)
}

// ValidateCredentials lists models, the cheapest authenticated call.
func (o *OpenAIIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return o.Probe(ctx, http.MethodGet, o.BaseURL()+"/models", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var list struct {
				Data []json.RawMessage `json:"data"`
			}
			if err := api.DecodeJSON(resp, &list); err != nil {
				return nil, err
			}
			return map[string]any{"models": len(list.Data)}, nil
		})
}

func (o *OpenAIIntegration) post(ctx context.Context, path string, body any, creds credential.Credentials, target any) error {
	resp, err := o.DoJSON(ctx, http.MethodPost, o.BaseURL()+path, body, creds)
	if err != nil {
		return err
	}
	if err := ParseError(resp); err != nil {
		return err
	}
	return api.DecodeJSON(resp, target)
}

func (o *OpenAIIntegration) chatCompletion(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	messages, _ := actx.Input["messages"].([]any)
	if len(messages) == 0 {
		prompt := api.String(actx.Input, "prompt")
		if prompt == "" {
			return nil, fmt.Errorf("one of prompt or messages is required")
		}
		if system := api.String(actx.Input, "system"); system != "" {
			messages = append(messages, map[string]any{"role": "system", "content": system})
		}
		messages = append(messages, map[string]any{"role": "user", "content": prompt})
	}

	body := api.Pick(actx.Input, "model", "temperature", "max_tokens")
	body["messages"] = messages

	var resp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage usage `json:"usage"`
	}
	if err := o.post(ctx, "/chat/completions", body, actx.Credentials(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}
	return map[string]any{
		"content":       resp.Choices[0].Message.Content,
		"finish_reason": resp.Choices[0].FinishReason,
		"model":         resp.Model,
		"usage":         resp.Usage.output(),
	}, nil
}

func (o *OpenAIIntegration) createEmbedding(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	var resp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage usage `json:"usage"`
	}
	if err := o.post(ctx, "/embeddings", api.Pick(actx.Input, "input", "model"), actx.Credentials(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("response contained no embedding")
	}
	return map[string]any{
		"embedding":  resp.Data[0].Embedding,
		"dimensions": len(resp.Data[0].Embedding),
		"usage":      resp.Usage.output(),
	}, nil
}
