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

// OllamaProvider talks to a local Ollama service. No credential is needed,
// only the service address.
type OllamaProvider struct {
	cfg    config.OllamaConfig
	client *http.Client
	log    *slog.Logger
}

// NewOllamaProvider creates the adapter. A nil client means http.DefaultClient.
func NewOllamaProvider(cfg config.OllamaConfig, client *http.Client) *OllamaProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaProvider{
		cfg:    cfg,
		client: client,
		log:    logger.For("llm").With("provider", string(ProviderOllama)),
	}
}

type ollamaRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	Stream   bool   `json:"stream"`
}

// Generate implements Provider.
func (p *OllamaProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.cfg.URL == "" {
		return "", &ConfigurationError{Provider: ProviderOllama, Missing: "OLLAMA_URL"}
	}

	payload := ollamaRequest{
		Model:    p.cfg.Model,
		Messages: withSystemTurn(req),
		Stream:   false,
	}

	p.log.Debug("sending request", "model", p.cfg.Model, "turns", len(payload.Messages))
	status, body, err := postJSON(ctx, p.client, strings.TrimRight(p.cfg.URL, "/")+"/api/chat", nil, payload)
	if err != nil {
		p.log.Warn("request failed", "error", err)
		return "", &UpstreamError{Provider: ProviderOllama, StatusCode: status, Message: err.Error()}
	}

	if !isSuccess(status) {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = fmt.Sprintf("Ollama error: %d. Is Ollama running?", status)
		}
		p.log.Warn("upstream error", "status", status, "message", msg)
		return "", &UpstreamError{Provider: ProviderOllama, StatusCode: status, Message: msg}
	}

	if !gjson.ValidBytes(body) {
		return "", &UpstreamError{Provider: ProviderOllama, StatusCode: status, Message: "Ollama returned a malformed response"}
	}
	return gjson.GetBytes(body, "message.content").String(), nil
}

// withSystemTurn prepends the system prompt as a history entry.
func withSystemTurn(req Request) []Turn {
	out := make([]Turn, 0, len(req.History)+1)
	out = append(out, Turn{Role: RoleSystem, Content: req.SystemPrompt})
	return append(out, req.History...)
}
