// Package llm provides language-model provider implementations behind a
// single completion boundary. Each provider hides API client setup,
// authentication, and request/response conversion for its vendor.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ChatMessage is one message in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name, for logging.
	Name() string

	// Model returns the model in use.
	Model() string

	// Chat sends a chat completion request and returns the text content.
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}

// ProviderType identifies a supported provider.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable holding this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	default:
		return ""
	}
}

// ParseProviderType parses a provider name (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// FromEnv creates a provider with its default model, reading the API key
// from the environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return p.ModelFromEnv(p.DefaultModel())
}

// ModelFromEnv creates a provider for a specific model, reading the API key
// from the environment.
func (p ProviderType) ModelFromEnv(model string) (Provider, error) {
	key := os.Getenv(p.EnvVar())
	if key == "" {
		return nil, fmt.Errorf("%s is not set", p.EnvVar())
	}
	switch p {
	case ProviderOpenAI:
		return NewOpenAIProvider(key, model), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(key, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %d", p)
	}
}
