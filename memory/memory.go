// Package memory provides an in-process chat.Store for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GetStream/nebula-chat/chat"
)

// Store keeps all records in memory behind a single lock.
type Store struct {
	mu sync.RWMutex

	users         map[string]chat.User
	conversations map[string]chat.Conversation // without members
	members       map[string][]chat.Member     // conversation -> members, without user
	directs       map[string]string            // direct key -> conversation
	messages      map[string]chat.Message
	byConv        map[string][]string                 // conversation -> message ids in insert order
	reactions     map[string]map[string]chat.Reaction // message -> user -> reaction
	seq           int64
	newID         func() string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:         make(map[string]chat.User),
		conversations: make(map[string]chat.Conversation),
		members:       make(map[string][]chat.Member),
		directs:       make(map[string]string),
		messages:      make(map[string]chat.Message),
		byConv:        make(map[string][]string),
		reactions:     make(map[string]map[string]chat.Reaction),
		newID:         chat.NewID,
	}
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(_ context.Context, id string) (chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return chat.User{}, fmt.Errorf("user %s: %w", id, chat.ErrNotFound)
	}
	return u, nil
}

// UpsertUser stores u, keeping the creation time of an existing record.
func (s *Store) UpsertUser(_ context.Context, u chat.User) (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.users[u.ID]; ok {
		u.CreatedAt = old.CreatedAt
	} else if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Role == "" {
		u.Role = chat.RoleUser
	}
	s.users[u.ID] = u
	return u, nil
}

// TouchUser sets the user's last activity.
func (s *Store) TouchUser(_ context.Context, id string, at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, chat.ErrNotFound)
	}
	if at != nil {
		t := *at
		at = &t
	}
	u.LastActiveAt = at
	s.users[id] = u
	return nil
}

// ResolveDirect finds or creates the direct conversation of a and b.
func (s *Store) ResolveDirect(_ context.Context, a, b string) (chat.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := chat.DirectKey(a, b)
	if id, ok := s.directs[key]; ok {
		return s.conversation(id), false, nil
	}

	now := time.Now()
	conv := s.insertConversation(nil, now)
	s.members[conv.ID] = []chat.Member{
		{ConversationID: conv.ID, UserID: a, Role: chat.MemberMember, JoinedAt: now},
		{ConversationID: conv.ID, UserID: b, Role: chat.MemberMember, JoinedAt: now},
	}
	s.directs[key] = conv.ID
	return s.conversation(conv.ID), true, nil
}

// CreateGroup creates a titled conversation with the given members.
func (s *Store) CreateGroup(_ context.Context, title string, members []chat.Member) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m.UserID] {
			return chat.Conversation{}, fmt.Errorf("membership %s: %w", m.UserID, chat.ErrConflict)
		}
		seen[m.UserID] = true
	}

	conv := s.insertConversation(&title, time.Now())
	ms := make([]chat.Member, len(members))
	for i, m := range members {
		m.ConversationID = conv.ID
		m.User = chat.User{}
		ms[i] = m
	}
	s.members[conv.ID] = ms
	return s.conversation(conv.ID), nil
}

func (s *Store) insertConversation(title *string, now time.Time) chat.Conversation {
	conv := chat.Conversation{ID: s.newID(), Title: title, CreatedAt: now}
	s.conversations[conv.ID] = conv
	return conv
}

// conversation returns the conversation joined with its members. The caller
// must hold the lock and the conversation must exist.
func (s *Store) conversation(id string) chat.Conversation {
	conv := s.conversations[id]
	ms := s.members[id]
	conv.Members = make([]chat.Member, len(ms))
	for i, m := range ms {
		m.User = s.users[m.UserID]
		conv.Members[i] = m
	}
	return conv
}

// GetConversation returns the conversation with its members.
func (s *Store) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[id]; !ok {
		return chat.Conversation{}, fmt.Errorf("conversation %s: %w", id, chat.ErrNotFound)
	}
	return s.conversation(id), nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Store) ListConversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.Conversation
	for id, ms := range s.members {
		for _, m := range ms {
			if m.UserID == userID {
				out = append(out, s.conversation(id))
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		// UUIDv7 ids grow with creation time.
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// InsertMessage stores msg and assigns its sequence number.
func (s *Store) InsertMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return chat.Message{}, fmt.Errorf("conversation %s: %w", msg.ConversationID, chat.ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.seq++
	msg.Seq = s.seq
	msg.IsRead = false
	s.messages[msg.ID] = msg
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg.ID)
	return msg, nil
}

// GetMessage returns the message with the given id.
func (s *Store) GetMessage(_ context.Context, id string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return chat.Message{}, fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
	}
	return m, nil
}

// ordered returns the conversation's messages in ascending order. The caller
// must hold the lock.
func (s *Store) ordered(conversationID string) []chat.Message {
	ids := s.byConv[conversationID]
	msgs := make([]chat.Message, len(ids))
	for i, id := range ids {
		msgs[i] = s.messages[id]
	}
	chat.SortMessages(msgs)
	return msgs
}

// ListMessages returns the conversation's messages annotated for viewerID.
func (s *Store) ListMessages(_ context.Context, conversationID, viewerID string) ([]chat.MessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.ordered(conversationID)
	out := make([]chat.MessageView, len(msgs))
	for i, m := range msgs {
		byUser := s.reactions[m.ID]
		_, reacted := byUser[viewerID]
		out[i] = chat.MessageView{
			Message:       m,
			Sender:        chat.SenderOf(s.users[m.SenderID]),
			ReactionCount: len(byUser),
			UserReacted:   reacted,
		}
	}
	return out, nil
}

// RecentMessages returns up to limit messages, newest first.
func (s *Store) RecentMessages(_ context.Context, conversationID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.ordered(conversationID)
	out := make([]chat.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

// MarkRead flags the messages not sent by viewerID as read.
func (s *Store) MarkRead(_ context.Context, conversationID, viewerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.SenderID == viewerID || m.IsRead {
			continue
		}
		m.IsRead = true
		s.messages[id] = m
		n++
	}
	return n, nil
}

// UnreadCount counts unread messages not sent by viewerID.
func (s *Store) UnreadCount(_ context.Context, conversationID, viewerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.SenderID != viewerID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

// ToggleReaction removes the user's reaction on the message if there is one
// and otherwise stores r.
func (s *Store) ToggleReaction(_ context.Context, r chat.Reaction) (chat.ReactionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[r.MessageID]; !ok {
		return "", fmt.Errorf("message %s: %w", r.MessageID, chat.ErrNotFound)
	}
	byUser := s.reactions[r.MessageID]
	if _, ok := byUser[r.UserID]; ok {
		delete(byUser, r.UserID)
		if len(byUser) == 0 {
			delete(s.reactions, r.MessageID)
		}
		return chat.ReactionRemoved, nil
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if byUser == nil {
		byUser = make(map[string]chat.Reaction)
		s.reactions[r.MessageID] = byUser
	}
	byUser[r.UserID] = r
	return chat.ReactionAdded, nil
}

// Reactions returns the number of stored reactions on messageID.
func (s *Store) Reactions(messageID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reactions[messageID])
}

// Conversations returns the number of stored conversations.
func (s *Store) Conversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
