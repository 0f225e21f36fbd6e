package chat

import (
	"context"
	"sort"
	"strings"
	"time"
)

// A Store persists users, conversations, messages and reactions.
//
// Lookups of a single record return an error wrapping ErrNotFound when the
// record does not exist.
type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	UpsertUser(ctx context.Context, u User) (User, error)
	// TouchUser stamps the user's last activity. A nil at clears it.
	TouchUser(ctx context.Context, id string, at *time.Time) error

	// ResolveDirect finds the direct conversation of a and b or creates it
	// together with both memberships in one transaction. created reports
	// whether this call inserted it. A lost creation race returns an error
	// wrapping ErrConflict.
	ResolveDirect(ctx context.Context, a, b string) (conv Conversation, created bool, err error)
	CreateGroup(ctx context.Context, title string, members []Member) (Conversation, error)
	// GetConversation returns the conversation with its members.
	GetConversation(ctx context.Context, id string) (Conversation, error)
	// ListConversations returns the user's conversations with members,
	// newest first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	InsertMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	// ListMessages returns every message of the conversation in ascending
	// order, annotated for viewerID.
	ListMessages(ctx context.Context, conversationID, viewerID string) ([]MessageView, error)
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// MarkRead flags every message not sent by viewerID as read and returns
	// how many changed.
	MarkRead(ctx context.Context, conversationID, viewerID string) (int, error)
	UnreadCount(ctx context.Context, conversationID, viewerID string) (int, error)

	ToggleReaction(ctx context.Context, r Reaction) (ReactionStatus, error)
}

// A Cache keeps the most recent messages of each conversation.
type Cache interface {
	PushMessage(ctx context.Context, msg Message) error
	// RecentMessages returns up to limit cached messages, newest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// A TypingRegistry tracks self-expiring "is typing" marks.
type TypingRegistry interface {
	MarkTyping(ctx context.Context, conversationID, userID string) error
	// ActiveTypers returns the users with a live mark, excluding viewerID.
	ActiveTypers(ctx context.Context, conversationID, viewerID string) ([]string, error)
}

// DirectKey is the order-independent identity of the direct conversation
// between a and b.
func DirectKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// SortMessages orders msgs by CreatedAt, then Seq.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}
