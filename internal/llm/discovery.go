package llm

import "github.com/comigor/stringalong/internal/config"

// Discovery is the selection list offered to clients.
type Discovery struct {
	Providers []Descriptor `json:"providers"`
	Default   ProviderID   `json:"default"`
}

// Discover lists the providers usable with cfg: cloud backends only when
// their key is set, the local Ollama service always. The default is the
// configured one when listed, otherwise the first entry.
func Discover(cfg config.ProvidersConfig) Discovery {
	var list []Descriptor
	if cfg.Anthropic.APIKey != "" {
		list = append(list, Descriptor{ID: ProviderAnthropic, Name: "Anthropic Claude", Model: cfg.Anthropic.Model})
	}
	if cfg.OpenAI.APIKey != "" {
		list = append(list, Descriptor{ID: ProviderOpenAI, Name: "OpenAI GPT", Model: cfg.OpenAI.Model})
	}
	list = append(list, Descriptor{ID: ProviderOllama, Name: "Ollama (Local)", Model: cfg.Ollama.Model})

	def := list[0].ID
	for _, d := range list {
		if cfg.Default != "" && string(d.ID) == cfg.Default {
			def = d.ID
			break
		}
	}
	return Discovery{Providers: list, Default: def}
}
