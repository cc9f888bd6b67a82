package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comigor/stringalong/internal/config"
)

type fakeProvider struct {
	name  string
	calls int
	err   error
}

func (f *fakeProvider) Generate(ctx context.Context, req Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.name, nil
}

func TestRouter_Dispatch(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"anthropic", "anthropic"},
		{"openai", "openai"},
		{"ollama", "ollama"},
		{" OpenAI ", "openai"},
		{"", "anthropic"},
		{"gemini", "anthropic"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r := NewRouter(&fakeProvider{name: "anthropic"}, &fakeProvider{name: "openai"}, &fakeProvider{name: "ollama"})
			out, err := r.Dispatch(context.Background(), tt.id, Request{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRouter_NoFallbackOnFailure(t *testing.T) {
	failing := &fakeProvider{name: "openai", err: &UpstreamError{Provider: ProviderOpenAI, Message: "boom"}}
	other := &fakeProvider{name: "anthropic"}
	r := NewRouter(other, failing, &fakeProvider{name: "ollama"})

	_, err := r.Dispatch(context.Background(), "openai", Request{})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, 1, failing.calls)
	assert.Zero(t, other.calls)
}

func TestRouter_DefaultIgnoresAvailability(t *testing.T) {
	// No Anthropic key: the default still routes there and fails loudly.
	r := NewRouterFromConfig(config.ProvidersConfig{
		OpenAI: config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o"},
		Ollama: config.OllamaConfig{URL: "http://localhost:11434", Model: "llama3"},
	}, nil)

	_, err := r.Dispatch(context.Background(), "unknown", Request{SystemPrompt: "x"})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ProviderAnthropic, cfgErr.Provider)
}

func TestDiscover(t *testing.T) {
	d := Discover(config.ProvidersConfig{
		Ollama: config.OllamaConfig{Model: "llama3"},
	})
	require.Len(t, d.Providers, 1)
	assert.Equal(t, ProviderOllama, d.Default)

	d = Discover(config.ProvidersConfig{
		Anthropic: config.AnthropicConfig{APIKey: "a", Model: "claude"},
		OpenAI:    config.OpenAIConfig{APIKey: "o", Model: "gpt-4o"},
		Ollama:    config.OllamaConfig{Model: "llama3"},
	})
	require.Len(t, d.Providers, 3)
	assert.Equal(t, []ProviderID{ProviderAnthropic, ProviderOpenAI, ProviderOllama},
		[]ProviderID{d.Providers[0].ID, d.Providers[1].ID, d.Providers[2].ID})
	assert.Equal(t, ProviderAnthropic, d.Default)
	assert.Equal(t, "gpt-4o", d.Providers[1].Model)

	d = Discover(config.ProvidersConfig{
		Default:   "ollama",
		Anthropic: config.AnthropicConfig{APIKey: "a"},
	})
	assert.Equal(t, ProviderOllama, d.Default)
}
