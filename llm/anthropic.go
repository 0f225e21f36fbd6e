package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/GetStream/nebula-chat/chat"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// Anthropic generates replies with the Messages API.
type Anthropic struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropic returns a generator for the Anthropic API.
func NewAnthropic(cfg Config) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")))
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	return &Anthropic{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (a *Anthropic) params(prompt string, history []chat.Turn) anthropic.MessageNewParams {
	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, t := range history {
		if t.Role == chat.TurnAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.maxTokens(),
		System:    []anthropic.TextBlockParam{{Text: a.cfg.systemPrompt()}},
		Messages:  msgs,
	}
}

// Generate concatenates the text blocks of the response.
func (a *Anthropic) Generate(ctx context.Context, prompt string, history []chat.Turn) (string, error) {
	resp, err := a.client.Messages.New(ctx, a.params(prompt, history))
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w: %w", chat.ErrGeneration, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}
