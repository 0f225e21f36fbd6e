package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/GetStream/nebula-chat/chat"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI generates replies with the Chat Completions API.
type OpenAI struct {
	client openai.Client
	cfg    Config
}

// NewOpenAI returns a generator for the OpenAI API or a compatible server at
// cfg.BaseURL.
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClient(opts...), cfg: cfg}
}

func (o *OpenAI) params(prompt string, history []chat.Turn) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(o.cfg.systemPrompt()))
	for _, t := range history {
		if t.Role == chat.TurnAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	return openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.cfg.Model),
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(o.cfg.maxTokens()),
	}
}

// Generate returns the first completion choice.
func (o *OpenAI) Generate(ctx context.Context, prompt string, history []chat.Turn) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(prompt, history))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w: %w", chat.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", chat.ErrGeneration)
	}
	return resp.Choices[0].Message.Content, nil
}
