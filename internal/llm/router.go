package llm

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/comigor/stringalong/internal/config"
	"github.com/comigor/stringalong/internal/logger"
)

// Router picks exactly one adapter per call. It never retries and never
// falls over to another backend.
type Router struct {
	anthropic Provider
	openai    Provider
	ollama    Provider
	log       *slog.Logger
}

// NewRouter builds a router over the three adapters.
func NewRouter(anthropic, openai, ollama Provider) *Router {
	return &Router{
		anthropic: anthropic,
		openai:    openai,
		ollama:    ollama,
		log:       logger.For("router"),
	}
}

// NewRouterFromConfig wires the real adapters from configuration.
func NewRouterFromConfig(cfg config.ProvidersConfig, client *http.Client) *Router {
	return NewRouter(
		NewAnthropicProvider(cfg.Anthropic, client),
		NewOpenAIProvider(cfg.OpenAI),
		NewOllamaProvider(cfg.Ollama, client),
	)
}

// Provider returns the adapter for id.
func (r *Router) Provider(id ProviderID) Provider {
	switch id {
	case ProviderOpenAI:
		return r.openai
	case ProviderOllama:
		return r.ollama
	default:
		return r.anthropic
	}
}

// Dispatch resolves providerID (unknown or empty selects DefaultProvider)
// and delegates to that adapter.
func (r *Router) Dispatch(ctx context.Context, providerID string, req Request) (string, error) {
	id := ParseProviderID(providerID)
	r.log.Debug("dispatching", "requested", providerID, "provider", string(id), "turns", len(req.History))
	return r.Provider(id).Generate(ctx, req)
}
