// Package openai adapts the go-openai client to the model router's
// Provider contract, and separately exposes an embeddings provider used
// by the memory store's optional vector similarity search.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// Adapter wraps an OpenAI client as a router.Provider.
type Adapter struct {
	client       *openai.Client
	defaultModel string
}

// New builds an Adapter from an API key and default model.
func New(apiKey, defaultModel string) *Adapter {
	return &Adapter{
		client:       openai.NewClient(apiKey),
		defaultModel: defaultModel,
	}
}

// NewWithBaseURL builds an Adapter pointed at a custom API base URL, used
// in tests to redirect calls at a local httptest server.
func NewWithBaseURL(apiKey, defaultModel, baseURL string) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Adapter{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (a *Adapter) Name() string { return "openai" }

// Complete sends one non-streaming chat completion request.
func (a *Adapter) Complete(ctx context.Context, req router.CompletionRequest) (router.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return router.CompletionResponse{}, fmt.Errorf("openai: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return router.CompletionResponse{}, fmt.Errorf("openai: empty response")
	}

	return router.CompletionResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: router.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Embedder implements the memory store's embeddings provider contract
// over the OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder builds an Embedder using the given API key.
func NewEmbedder(apiKey string) *Embedder {
	return &Embedder{
		client: openai.NewClient(apiKey),
		model:  openai.SmallEmbedding3,
	}
}

// Embed returns the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
