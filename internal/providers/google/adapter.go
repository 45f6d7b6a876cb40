// Package google adapts the Gemini Gen AI SDK to the model router's
// Provider contract.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/wintermute-run/wintermute/internal/router"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// Adapter wraps a Gemini client as a router.Provider.
type Adapter struct {
	client       *genai.Client
	defaultModel string
}

// New builds an Adapter from an API key and default model.
func New(ctx context.Context, apiKey, defaultModel string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: new client: %w", err)
	}
	return &Adapter{client: client, defaultModel: defaultModel}, nil
}

func (a *Adapter) Name() string { return "google" }

// Complete sends one non-streaming generateContent request.
func (a *Adapter) Complete(ctx context.Context, req router.CompletionRequest) (router.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return router.CompletionResponse{}, fmt.Errorf("google: completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return router.CompletionResponse{}, fmt.Errorf("google: empty response")
	}

	out := router.CompletionResponse{Text: resp.Text()}
	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = router.Usage{
			InputTokens:  int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
		}
	}
	return out, nil
}
