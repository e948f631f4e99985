package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const advisorSystemPrompt = "You are a grant-search assistant. Given a " +
	"funding search query, reply with one short sentence of guidance on " +
	"narrowing or broadening the search. Reply with the guidance only."

// Advisor produces optional advisory text for a query via chat completion.
// The router treats any failure here as a silent degrade.
type Advisor struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// AdvisorConfig holds the advisory provider settings.
type AdvisorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// NewAdvisor creates an OpenAI-compatible advisory provider.
func NewAdvisor(cfg *AdvisorConfig) *Advisor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 120
	}

	return &Advisor{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Advise returns one line of guidance for a query.
func (a *Advisor) Advise(ctx context.Context, queryText string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: advisorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: queryText},
		},
	})
	if err != nil {
		return "", fmt.Errorf("advisory completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("advisory completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
