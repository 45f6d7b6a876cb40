package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wintermute-run/wintermute/internal/router"
)

// Adapter wraps a Bedrock Runtime client as a router.Provider, typically
// wired as the "oracle" role override for a second opinion backed by a
// different foundation model family.
type Adapter struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// New builds an Adapter using the ambient AWS configuration (environment,
// shared config file, or instance role) for the given region.
func New(ctx context.Context, region, defaultModel string) (*Adapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading AWS config: %w", err)
	}
	return &Adapter{
		client:       bedrockruntime.NewFromConfig(cfg),
		defaultModel: defaultModel,
	}, nil
}

// NewWithEndpoint builds an Adapter against a fixed endpoint and static
// credentials, used in tests to redirect calls at a local httptest server.
func NewWithEndpoint(ctx context.Context, region, defaultModel, endpoint string) (*Adapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading AWS config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &Adapter{client: client, defaultModel: defaultModel}, nil
}

func (a *Adapter) Name() string { return "bedrock" }

// anthropicMessagesBody is the request shape Bedrock's Anthropic-compatible
// models expect on InvokeModel.
type anthropicMessagesBody struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	System           string                   `json:"system,omitempty"`
	Messages         []anthropicMessagesEntry `json:"messages"`
}

type anthropicMessagesEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete invokes the configured model via Bedrock's InvokeModel API
// using the Anthropic-compatible message body shape.
func (a *Adapter) Complete(ctx context.Context, req router.CompletionRequest) (router.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	entries := make([]anthropicMessagesEntry, 0, len(req.Messages))
	for _, m := range req.Messages {
		entries = append(entries, anthropicMessagesEntry{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(anthropicMessagesBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           req.System,
		Messages:         entries,
	})
	if err != nil {
		return router.CompletionResponse{}, fmt.Errorf("bedrock: marshaling request body: %w", err)
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return router.CompletionResponse{}, fmt.Errorf("bedrock: invoke model failed: %w", err)
	}

	var parsed anthropicMessagesResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return router.CompletionResponse{}, fmt.Errorf("bedrock: unmarshaling response: %w", err)
	}

	resp := router.CompletionResponse{
		Usage: router.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}
	for _, c := range parsed.Content {
		resp.Text += c.Text
	}
	return resp, nil
}
