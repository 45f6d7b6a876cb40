// Package anthropic adapts the Anthropic SDK to the model router's
// Provider contract.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// Adapter wraps an Anthropic client as a router.Provider.
type Adapter struct {
	client       anthropic.Client
	defaultModel string
}

// New builds an Adapter from an API key and a default model name.
func New(apiKey, defaultModel string) *Adapter {
	return &Adapter{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

// NewWithBaseURL builds an Adapter pointed at a custom API base URL, used
// in tests to redirect calls at a local httptest server.
func NewWithBaseURL(apiKey, defaultModel, baseURL string) *Adapter {
	return &Adapter{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
		defaultModel: defaultModel,
	}
}

func (a *Adapter) Name() string { return "anthropic" }

// Complete sends one non-streaming completion request.
func (a *Adapter) Complete(ctx context.Context, req router.CompletionRequest) (router.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		text := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case models.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(text))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(text))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: msgs,
	})
	if err != nil {
		return router.CompletionResponse{}, fmt.Errorf("anthropic: completion failed: %w", err)
	}

	out := router.CompletionResponse{
		Usage: router.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			out.Text += text
		}
	}
	return out, nil
}
