// Package llm relays a persona-neutral chat request to one of the supported
// language-model backends and normalizes what comes back.
//
// Every backend sees the system prompt first and then the history in the
// order given. Adapters make exactly one network attempt per call.
package llm

import (
	"context"
	"strings"
)

// Role is the speaker of a history turn, in the vocabulary the backends share.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged entry of a chat history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is what every adapter accepts.
type Request struct {
	SystemPrompt string
	History      []Turn
}

// Provider produces a single reply for a request. An empty reply with a nil
// error means the backend answered without text.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ProviderID tags one of the supported backends.
type ProviderID string

const (
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOpenAI    ProviderID = "openai"
	ProviderOllama    ProviderID = "ollama"
)

// DefaultProvider is used whenever a caller names no provider or one we do
// not know. It does not depend on which backends are configured.
const DefaultProvider = ProviderAnthropic

// ParseProviderID maps a free-form identifier onto a known provider, falling
// back to DefaultProvider.
func ParseProviderID(s string) ProviderID {
	switch ProviderID(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOpenAI:
		return ProviderOpenAI
	case ProviderOllama:
		return ProviderOllama
	default:
		return DefaultProvider
	}
}

// Descriptor is the transient listing entry of a provider.
type Descriptor struct {
	ID    ProviderID `json:"id"`
	Name  string     `json:"name"`
	Model string     `json:"model"`
}
