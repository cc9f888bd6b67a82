package config

import (
	"errors"
	"os"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// StoreConfig holds the conversation store location
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProvidersConfig holds per-backend settings. Default is only a hint for
// clients; dispatch falls back to Anthropic regardless.
type ProvidersConfig struct {
	Default   string          `mapstructure:"default"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
}

// AnthropicConfig holds the Anthropic Messages API configuration
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	Version   string `mapstructure:"version"`
}

// OpenAIConfig holds the OpenAI chat completions configuration
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// OllamaConfig holds the local Ollama service configuration
type OllamaConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// Load loads the configuration. A .env file in the working directory is
// applied to the environment first. The YAML file is config.yaml in the
// working directory, or the file named by CONFIG_PATH; only an explicitly
// named file is required to exist.
func Load() (*Config, error) {
	_ = gotenv.Load()

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "3001")
	v.SetDefault("store.path", "stringalong.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("providers.anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("providers.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("providers.anthropic.max_tokens", 1000)
	v.SetDefault("providers.anthropic.version", "2023-06-01")

	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.model", "gpt-4o")
	v.SetDefault("providers.openai.max_tokens", 1000)

	v.SetDefault("providers.ollama.url", "http://localhost:11434")
	v.SetDefault("providers.ollama.model", "llama3")
}

// envBindings maps config keys to the environment variables the relay has
// always honoured.
var envBindings = map[string]string{
	"providers.anthropic.api_key": "ANTHROPIC_API_KEY",
	"providers.openai.api_key":    "OPENAI_API_KEY",
	"providers.ollama.url":        "OLLAMA_URL",
	"providers.ollama.model":      "OLLAMA_MODEL",
	"store.path":                  "STRINGALONG_DB_PATH",
	"server.port":                 "PORT",
	"log.level":                   "LOG_LEVEL",
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}
