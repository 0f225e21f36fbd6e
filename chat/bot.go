package chat

import (
	"context"
	"time"
)

// Defaults for the bot participant.
const (
	DefaultBotID      = "0000-0000-AI"
	DefaultBotName    = "Nebula AI"
	DefaultBotHistory = 5
	DefaultBotTimeout = 30 * time.Second
	DefaultBotWelcome = "Hello! I am Nebula AI. You can ask me anything."
	DefaultBotApology = "I'm having a bit of a glitch in the matrix right now. 🌌 Try again later!"
)

// appendTimeout bounds the store write of a bot reply once generation is done.
const appendTimeout = 10 * time.Second

// Turn roles passed to a Generator.
const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

// A Turn is one entry of the conversation history handed to a Generator.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// A Generator produces the bot's reply to prompt given the preceding history
// in chronological order.
type Generator interface {
	Generate(ctx context.Context, prompt string, history []Turn) (string, error)
}

// A Submitter runs jobs in the background. Submit must not block.
type Submitter interface {
	Submit(job func(ctx context.Context)) error
}

// Bot configures the always-online participant that answers in its direct
// conversations.
type Bot struct {
	ID        string
	Name      string
	Generator Generator
	Jobs      Submitter
	// History is the number of earlier messages given to the Generator.
	History int
	// Timeout bounds a single generation.
	Timeout time.Duration
	// Fallback is appended when generation fails. Empty means no reply.
	Fallback string
	// Welcome is the first message of a newly started bot conversation.
	Welcome string
}

func (b *Bot) history() int {
	if b.History > 0 {
		return b.History
	}
	return DefaultBotHistory
}

func (b *Bot) timeout() time.Duration {
	if b.Timeout > 0 {
		return b.Timeout
	}
	return DefaultBotTimeout
}

func (b *Bot) welcome() string {
	if b.Welcome != "" {
		return b.Welcome
	}
	return DefaultBotWelcome
}

// Turns converts messages, oldest first, into generator history.
func (b *Bot) Turns(msgs []Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		role := TurnUser
		if m.SenderID == b.ID {
			role = TurnAssistant
		}
		turns = append(turns, Turn{Role: role, Content: m.Content})
	}
	return turns
}
