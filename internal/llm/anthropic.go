package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/comigor/stringalong/internal/config"
	"github.com/comigor/stringalong/internal/logger"
)

// AnthropicProvider talks to the Anthropic Messages API. The system prompt
// travels in its own field rather than as a history entry.
type AnthropicProvider struct {
	cfg    config.AnthropicConfig
	client *http.Client
	log    *slog.Logger
}

// NewAnthropicProvider creates the adapter. A nil client means http.DefaultClient.
func NewAnthropicProvider(cfg config.AnthropicConfig, client *http.Client) *AnthropicProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &AnthropicProvider{
		cfg:    cfg,
		client: client,
		log:    logger.For("llm").With("provider", string(ProviderAnthropic)),
	}
}

type anthropicRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    string `json:"system"`
	Messages  []Turn `json:"messages"`
}

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.cfg.APIKey == "" {
		return "", &ConfigurationError{Provider: ProviderAnthropic, Missing: "ANTHROPIC_API_KEY"}
	}

	messages := req.History
	if messages == nil {
		messages = []Turn{}
	}
	payload := anthropicRequest{
		Model:     p.cfg.Model,
		MaxTokens: p.cfg.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  messages,
	}
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": p.cfg.Version,
	}

	p.log.Debug("sending request", "model", p.cfg.Model, "turns", len(messages))
	status, body, err := postJSON(ctx, p.client, strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/messages", headers, payload)
	if err != nil {
		p.log.Warn("request failed", "error", err)
		return "", &UpstreamError{Provider: ProviderAnthropic, StatusCode: status, Message: err.Error()}
	}

	if !isSuccess(status) {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = fmt.Sprintf("Anthropic API error: %d", status)
		}
		p.log.Warn("upstream error", "status", status, "message", msg)
		return "", &UpstreamError{Provider: ProviderAnthropic, StatusCode: status, Message: msg}
	}

	if !gjson.ValidBytes(body) {
		return "", &UpstreamError{Provider: ProviderAnthropic, StatusCode: status, Message: "Anthropic API returned a malformed response"}
	}
	return gjson.GetBytes(body, "content.0.text").String(), nil
}
