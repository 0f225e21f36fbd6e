package redis

import (
	"time"

	"github.com/GetStream/nebula-chat/chat"
)

// A message represents a cached message hash. Timestamps are unix
// nanoseconds and an empty MediaURL means none.
type message struct {
	ID             string `redis:"id"`
	Seq            int64  `redis:"seq"`
	ConversationID string `redis:"conversation_id"`
	SenderID       string `redis:"sender_id"`
	Content        string `redis:"content"`
	Type           string `redis:"type"`
	MediaURL       string `redis:"media_url"`
	CreatedAt      int64  `redis:"created_at"`
}

func newMessage(msg chat.Message) *message {
	m := &message{
		ID:             msg.ID,
		Seq:            msg.Seq,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		CreatedAt:      msg.CreatedAt.UnixNano(),
	}
	if msg.MediaURL != nil {
		m.MediaURL = *msg.MediaURL
	}
	return m
}

func (m message) ChatMessage() chat.Message {
	out := chat.Message{
		ID:             m.ID,
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           chat.MessageType(m.Type),
		CreatedAt:      time.Unix(0, m.CreatedAt).UTC(),
	}
	if m.MediaURL != "" {
		url := m.MediaURL
		out.MediaURL = &url
	}
	return out
}
