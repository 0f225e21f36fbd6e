package chat

import (
	"context"
	"fmt"
	"time"
)

// DefaultPresenceWindow is how long after its last request a user still
// counts as online.
const DefaultPresenceWindow = 2 * time.Minute

// Presence derives online status from User.LastActiveAt. It keeps no state
// of its own.
type Presence struct {
	Store  Store
	BotID  string
	Window time.Duration
	Now    func() time.Time
}

func (p *Presence) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Presence) window() time.Duration {
	if p.Window > 0 {
		return p.Window
	}
	return DefaultPresenceWindow
}

// IsOnline reports whether u is online. The bot is always online.
func (p *Presence) IsOnline(u User) bool {
	if u.ID == p.BotID {
		return true
	}
	if u.LastActiveAt == nil {
		return false
	}
	return p.now().Sub(*u.LastActiveAt) < p.window()
}

// Touch stamps the user's last activity with the current time.
func (p *Presence) Touch(ctx context.Context, userID string) error {
	now := p.now()
	if err := p.Store.TouchUser(ctx, userID, &now); err != nil {
		return fmt.Errorf("touch user %s: %w", userID, err)
	}
	return nil
}

// Clear marks the user as logged out until the next Touch.
func (p *Presence) Clear(ctx context.Context, userID string) error {
	if err := p.Store.TouchUser(ctx, userID, nil); err != nil {
		return fmt.Errorf("clear user %s: %w", userID, err)
	}
	return nil
}
