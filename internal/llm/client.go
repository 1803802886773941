package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Client adapts a Provider to the single-prompt completion boundary the
// planner, solver, and agents consume. An optional system prompt is prepended
// to every request.
type Client struct {
	provider Provider
	system   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSystemPrompt sets a system prompt sent with every request.
func WithSystemPrompt(system string) ClientOption {
	return func(c *Client) {
		c.system = system
	}
}

// NewClient wraps a provider.
func NewClient(provider Provider, options ...ClientOption) *Client {
	c := &Client{provider: provider}
	for _, option := range options {
		option(c)
	}
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider { return c.provider }

// Generate sends a single-prompt completion request and returns the text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	messages := make([]ChatMessage, 0, 2)
	if c.system != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: c.system})
	}
	messages = append(messages, ChatMessage{Role: RoleUser, Content: prompt})

	start := time.Now()
	content, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("provider", c.provider.Name()).
		Str("model", c.provider.Model()).
		Dur("duration", time.Since(start)).
		Int("prompt_len", len(prompt)).
		Int("response_len", len(content)).
		Msg("llm completion")

	return content, nil
}
