package api

import (
	"context"

	"github.com/GetStream/nebula-chat/chat"
)

// A Chat provides the conversation and messaging operations behind the
// endpoints.
type Chat interface {
	ResolveDirect(ctx context.Context, userID, recipientID string) (chat.ConversationRef, error)
	CreateGroup(ctx context.Context, initiator string, memberIDs []string, title string) (chat.ConversationRef, error)
	StartBotConversation(ctx context.Context, userID string) (chat.ConversationRef, error)
	ListConversations(ctx context.Context, userID string) ([]chat.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID, viewerID string) (chat.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string) (chat.MessageView, error)
	SendMedia(ctx context.Context, conversationID, senderID, mediaURL string, kind chat.MessageType) (chat.MessageView, error)
	MarkTyping(ctx context.Context, conversationID, userID string) error
	ToggleReaction(ctx context.Context, messageID, userID, label string) (chat.ReactionStatus, error)
	TouchPresence(ctx context.Context, userID string) error
	Logout(ctx context.Context, userID string) error
}

// A Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type (
	resolveRequest struct {
		RecipientID string `json:"recipient_id" validate:"required"`
	}
	groupRequest struct {
		Title     string   `json:"title" validate:"required,notblank,max=255"`
		MemberIDs []string `json:"member_ids" validate:"required,min=1,dive,required"`
	}
	messageRequest struct {
		Content string `json:"content" validate:"required,notblank,max=4000"`
	}
	mediaRequest struct {
		MediaURL string `json:"media_url" validate:"required,url"`
		Type     string `json:"type" validate:"required,oneof=image audio file"`
	}
	reactionRequest struct {
		Reaction string `json:"reaction" validate:"required,notblank,max=32"`
	}
)

type (
	conversationsResponse struct {
		Conversations []chat.ConversationSummary `json:"conversations"`
	}
	reactionResponse struct {
		Status chat.ReactionStatus `json:"status"`
	}
)
