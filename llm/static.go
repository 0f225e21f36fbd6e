package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/GetStream/nebula-chat/chat"
)

// Static answers without calling out, for local development.
type Static struct{}

// Generate echoes the prompt.
func (Static) Generate(ctx context.Context, prompt string, _ []chat.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", chat.ErrGeneration, err)
	}
	return fmt.Sprintf("You said: %q. I am running without a language model right now.", strings.TrimSpace(prompt)), nil
}
