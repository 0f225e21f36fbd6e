// Package llm provides text-generation backends for the bot.
package llm

import (
	"fmt"
	"strings"

	"github.com/GetStream/nebula-chat/chat"
)

// DefaultSystemPrompt frames every generation.
const DefaultSystemPrompt = "You are Nebula AI, a friendly assistant inside a chat app. Keep answers short and conversational."

const defaultMaxTokens = 512

// Config selects and configures a generator.
type Config struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	MaxTokens    int64
	SystemPrompt string
}

// New returns the generator named by cfg.Provider.
func New(cfg Config) (chat.Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "", "static":
		return Static{}, nil
	default:
		return nil, fmt.Errorf("unknown bot provider %q", cfg.Provider)
	}
}

func (c Config) systemPrompt() string {
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}
	return DefaultSystemPrompt
}

func (c Config) maxTokens() int64 {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}
