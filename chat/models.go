package chat

import "time"

// Role is the account role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// MemberRole is the role a user holds inside a group conversation.
type MemberRole string

const (
	MemberAdmin  MemberRole = "admin"
	MemberMember MemberRole = "member"
)

// MessageType is the declared kind of a message's content.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeAudio MessageType = "audio"
	TypeFile  MessageType = "file"
)

// IsMedia reports whether t refers to uploaded media.
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeImage, TypeAudio, TypeFile:
		return true
	}
	return false
}

// ReactionStatus is the outcome of a reaction toggle.
type ReactionStatus string

const (
	ReactionAdded   ReactionStatus = "added"
	ReactionRemoved ReactionStatus = "removed"
)

// A GeoLocation is the optional location recorded for a user.
type GeoLocation struct {
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// A User is a participant known to the messaging engine.
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Role         Role         `json:"role"`
	AvatarURL    *string      `json:"avatar_url"`
	Location     *GeoLocation `json:"location,omitempty"`
	LastActiveAt *time.Time   `json:"last_active_at"`
	CreatedAt    time.Time    `json:"created_at"`
}

// A Member is a membership record joined with the member's user record.
type Member struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	Role           MemberRole `json:"role"`
	JoinedAt       time.Time  `json:"joined_at"`
	User           User       `json:"user"`
}

// A Conversation is either a direct chat (no title, two members) or a group.
type Conversation struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Members   []Member  `json:"members,omitempty"`
}

// IsGroup reports whether the conversation is a titled group.
func (c Conversation) IsGroup() bool {
	return c.Title != nil
}

// Other returns the first member that is not userID.
func (c Conversation) Other(userID string) (Member, bool) {
	for _, m := range c.Members {
		if m.UserID != userID {
			return m, true
		}
	}
	return Member{}, false
}

// HasMember reports whether userID belongs to the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// A ConversationRef is the minimal handle returned when a conversation is
// resolved or created.
type ConversationRef struct {
	ID    string  `json:"id"`
	Title *string `json:"title,omitempty"`
}

// A Message is a persisted message. Seq is assigned by the store and breaks
// ties between messages sharing a CreatedAt.
type Message struct {
	ID             string      `json:"id"`
	Seq            int64       `json:"-"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	MediaURL       *string     `json:"media_url"`
	IsRead         bool        `json:"is_read"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Before reports whether m sorts before o in conversation order.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}

// A Sender is the public projection of a message author.
type Sender struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

// SenderOf projects u for display next to a message.
func SenderOf(u User) Sender {
	return Sender{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// A MessageView is a message annotated for a particular viewer.
type MessageView struct {
	Message
	Sender        Sender `json:"sender"`
	ReactionCount int    `json:"reaction_count"`
	UserReacted   bool   `json:"user_reacted"`
}

// A Reaction is the single reaction a user holds on a message.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
}

// A MemberView is a conversation member as rendered in a summary.
type MemberView struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	AvatarURL *string    `json:"avatar_url"`
	Role      MemberRole `json:"role"`
	IsOnline  bool       `json:"is_online"`
}

// A ConversationSummary is one row of a user's conversation list. Groups use
// their title as Username; direct chats take the other member's identity.
type ConversationSummary struct {
	ID          string       `json:"id"`
	IsGroup     bool         `json:"is_group"`
	Username    string       `json:"username"`
	AvatarURL   *string      `json:"avatar_url"`
	Members     []MemberView `json:"members"`
	UnreadCount int          `json:"unread_count"`
	IsOnline    bool         `json:"is_online"`
	OtherUserID string       `json:"other_user_id,omitempty"`
}

// MessagePage is the result of listing a conversation's messages.
type MessagePage struct {
	Messages    []MessageView `json:"messages"`
	TypingUsers []string      `json:"typing_users"`
}
