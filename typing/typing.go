// Package typing provides a process-local registry of "is typing" marks.
package typing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultWindow is how long a typing mark stays live.
const DefaultWindow = 10 * time.Second

// Registry holds typing marks in memory. Marks expire lazily when a
// conversation is read. The zero value is ready to use.
type Registry struct {
	Window time.Duration
	Now    func() time.Time

	mu    sync.Mutex
	marks map[string]map[string]time.Time // conversation -> user -> last typed
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return DefaultWindow
}

// MarkTyping records that userID typed in conversationID just now,
// replacing any previous mark.
func (r *Registry) MarkTyping(_ context.Context, conversationID, userID string) error {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.marks == nil {
		r.marks = make(map[string]map[string]time.Time)
	}
	conv, ok := r.marks[conversationID]
	if !ok {
		conv = make(map[string]time.Time)
		r.marks[conversationID] = conv
	}
	conv[userID] = now
	return nil
}

// ActiveTypers returns, sorted, the users that typed in conversationID
// within the window, excluding viewerID. Expired marks are evicted.
func (r *Registry) ActiveTypers(_ context.Context, conversationID, viewerID string) ([]string, error) {
	now := r.now()
	window := r.window()

	r.mu.Lock()
	defer r.mu.Unlock()
	conv := r.marks[conversationID]
	out := make([]string, 0, len(conv))
	for user, at := range conv {
		if now.Sub(at) >= window {
			delete(conv, user)
			continue
		}
		if user != viewerID {
			out = append(out, user)
		}
	}
	if conv != nil && len(conv) == 0 {
		delete(r.marks, conversationID)
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of conversations with at least one stored mark.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.marks)
}
