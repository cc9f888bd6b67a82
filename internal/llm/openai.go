package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/stringalong/internal/config"
	"github.com/comigor/stringalong/internal/logger"
)

// Client is the subset of openai.Client the adapter uses.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider talks to the OpenAI chat completions API through go-openai.
type OpenAIProvider struct {
	cfg    config.OpenAIConfig
	client Client
	log    *slog.Logger
}

// NewOpenAIProvider creates the adapter with a real client when a key is set.
func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	var client Client
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(clientCfg)
	}
	return NewOpenAIProviderWithClient(cfg, client)
}

// NewOpenAIProviderWithClient creates the adapter around an existing client.
func NewOpenAIProviderWithClient(cfg config.OpenAIConfig, client Client) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:    cfg,
		client: client,
		log:    logger.For("llm").With("provider", string(ProviderOpenAI)),
	}
}

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.cfg.APIKey == "" || p.client == nil {
		return "", &ConfigurationError{Provider: ProviderOpenAI, Missing: "OPENAI_API_KEY"}
	}

	turns := withSystemTurn(req)
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	p.log.Debug("sending request", "model", p.cfg.Model, "turns", len(messages))
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.cfg.Model,
		MaxTokens: p.cfg.MaxTokens,
		Messages:  messages,
	})
	if err != nil {
		upstream := toUpstreamError(err)
		p.log.Warn("upstream error", "status", upstream.StatusCode, "message", upstream.Message)
		return "", upstream
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// toUpstreamError prefers the structured error body and falls back to the
// status code when the body could not be parsed.
func toUpstreamError(err error) *UpstreamError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("OpenAI API error: %d", apiErr.HTTPStatusCode)
		}
		return &UpstreamError{Provider: ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Message: msg}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{
			Provider:   ProviderOpenAI,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprintf("OpenAI API error: %d", reqErr.HTTPStatusCode),
		}
	}

	return &UpstreamError{Provider: ProviderOpenAI, Message: err.Error()}
}
