package llm

import "fmt"

// ConfigurationError reports a credential or service address that must be
// set before the adapter can be used. No network I/O happened.
type ConfigurationError struct {
	Provider ProviderID
	Missing  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not configured", e.Missing)
}

// UpstreamError reports a failed or unreadable backend response.
// StatusCode is zero when no HTTP response was received.
type UpstreamError struct {
	Provider   ProviderID
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return e.Message
}
