package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/GetStream/nebula-chat/chat"
)

// A user represents a user in the database.
type user struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string     `bun:",pk"`
	Username     string     `bun:",notnull,unique"`
	Role         string     `bun:",notnull,default:'user'"`
	AvatarURL    *string    `bun:"avatar_url"`
	Country      *string    `bun:"country"`
	Lat          *float64   `bun:"lat"`
	Lng          *float64   `bun:"lng"`
	LastActiveAt *time.Time `bun:"last_active_at"`
	CreatedAt    time.Time  `bun:",nullzero,notnull,default:current_timestamp"`
}

// A conversation is a direct chat when DirectKey is set and a group when
// Title is set.
type conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID        string    `bun:",pk"`
	Title     *string   `bun:"title"`
	DirectKey *string   `bun:"direct_key"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	Members   []member  `bun:"rel:has-many,join:id=conversation_id"`
}

type member struct {
	bun.BaseModel `bun:"table:conversation_members,alias:m"`

	ConversationID string    `bun:",pk"`
	UserID         string    `bun:",pk"`
	Role           string    `bun:",notnull,default:'member'"`
	JoinedAt       time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	User           *user     `bun:"rel:belongs-to,join:user_id=id"`
}

// A message represents a message in the database. Seq orders messages that
// share a timestamp.
type message struct {
	bun.BaseModel `bun:"table:messages,alias:msg"`

	ID             string    `bun:",pk"`
	Seq            int64     `bun:"seq,type:bigserial,nullzero,notnull"`
	ConversationID string    `bun:",notnull"`
	SenderID       string    `bun:",notnull"`
	Content        string    `bun:",notnull"`
	Type           string    `bun:",notnull,default:'text'"`
	MediaURL       *string   `bun:"media_url"`
	IsRead         bool      `bun:",notnull,default:false"`
	CreatedAt      time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	Sender         *user     `bun:"rel:belongs-to,join:sender_id=id"`
}

type reaction struct {
	bun.BaseModel `bun:"table:message_reactions,alias:r"`

	ID        string    `bun:",pk"`
	MessageID string    `bun:",notnull"`
	UserID    string    `bun:",notnull"`
	Reaction  string    `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// reactionTally aggregates the reactions of one message for a viewer.
type reactionTally struct {
	MessageID string `bun:"message_id"`
	Count     int    `bun:"count"`
	Reacted   bool   `bun:"reacted"`
}

func newUser(u chat.User) *user {
	m := &user{
		ID:           u.ID,
		Username:     u.Username,
		Role:         string(u.Role),
		AvatarURL:    u.AvatarURL,
		LastActiveAt: u.LastActiveAt,
		CreatedAt:    u.CreatedAt,
	}
	if m.Role == "" {
		m.Role = string(chat.RoleUser)
	}
	if u.Location != nil {
		m.Country = &u.Location.Country
		m.Lat = &u.Location.Lat
		m.Lng = &u.Location.Lng
	}
	return m
}

func (u user) ChatUser() chat.User {
	out := chat.User{
		ID:           u.ID,
		Username:     u.Username,
		Role:         chat.Role(u.Role),
		AvatarURL:    u.AvatarURL,
		LastActiveAt: u.LastActiveAt,
		CreatedAt:    u.CreatedAt,
	}
	if u.Country != nil && u.Lat != nil && u.Lng != nil {
		out.Location = &chat.GeoLocation{Country: *u.Country, Lat: *u.Lat, Lng: *u.Lng}
	}
	return out
}

func (c conversation) ChatConversation() chat.Conversation {
	members := make([]chat.Member, len(c.Members))
	for i, m := range c.Members {
		members[i] = m.ChatMember()
	}
	return chat.Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		Members:   members,
	}
}

func (m member) ChatMember() chat.Member {
	out := chat.Member{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           chat.MemberRole(m.Role),
		JoinedAt:       m.JoinedAt,
	}
	if m.User != nil {
		out.User = m.User.ChatUser()
	}
	return out
}

func newMessage(msg chat.Message) *message {
	return &message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		MediaURL:       msg.MediaURL,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m message) ChatMessage() chat.Message {
	return chat.Message{
		ID:             m.ID,
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           chat.MessageType(m.Type),
		MediaURL:       m.MediaURL,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

func (m message) ChatView(t reactionTally) chat.MessageView {
	v := chat.MessageView{
		Message:       m.ChatMessage(),
		ReactionCount: t.Count,
		UserReacted:   t.Reacted,
	}
	if m.Sender != nil {
		v.Sender = chat.SenderOf(m.Sender.ChatUser())
	}
	return v
}
