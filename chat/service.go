package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/GetStream/nebula-chat/metrics"
)

// Input limits.
const (
	MaxContentLength  = 4000
	MaxTitleLength    = 255
	MaxReactionLength = 32
)

// MediaPlaceholder is the content stored for attachment messages.
const MediaPlaceholder = "Sent an attachment"

// Service is the conversation and messaging engine.
type Service struct {
	Store    Store
	Cache    Cache // optional
	Typing   TypingRegistry
	Presence *Presence
	Bot      *Bot // optional
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// NewID returns a time-ordered identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ResolveDirect returns the direct conversation between userID and
// recipientID, creating it on first contact.
func (s *Service) ResolveDirect(ctx context.Context, userID, recipientID string) (ConversationRef, error) {
	conv, _, err := s.resolveDirect(ctx, userID, recipientID)
	if err != nil {
		return ConversationRef{}, err
	}
	return ConversationRef{ID: conv.ID}, nil
}

func (s *Service) resolveDirect(ctx context.Context, userID, recipientID string) (Conversation, bool, error) {
	if recipientID == "" {
		return Conversation{}, false, fmt.Errorf("recipient is required: %w", ErrValidation)
	}
	if userID == recipientID {
		return Conversation{}, false, fmt.Errorf("cannot start a conversation with yourself: %w", ErrValidation)
	}
	if _, err := s.Store.GetUser(ctx, recipientID); err != nil {
		return Conversation{}, false, fmt.Errorf("get recipient: %w", err)
	}

	conv, created, err := s.Store.ResolveDirect(ctx, userID, recipientID)
	if errors.Is(err, ErrConflict) {
		// Another request created the pair first; its row is now visible.
		s.Logger.Info("Direct conversation race, re-resolving", "user_id", userID, "recipient_id", recipientID)
		conv, created, err = s.Store.ResolveDirect(ctx, userID, recipientID)
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("resolve direct conversation: %w", err)
	}
	if created {
		metrics.ConversationsCreated.WithLabelValues("direct").Inc()
	}
	return conv, created, nil
}

// CreateGroup creates a titled conversation with initiator as admin and
// memberIDs as members.
func (s *Service) CreateGroup(ctx context.Context, initiator string, memberIDs []string, title string) (ConversationRef, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return ConversationRef{}, fmt.Errorf("group title is required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ConversationRef{}, fmt.Errorf("group title exceeds %d characters: %w", MaxTitleLength, ErrValidation)
	}
	if len(memberIDs) == 0 {
		return ConversationRef{}, fmt.Errorf("group needs at least one member: %w", ErrValidation)
	}

	now := s.now()
	members := []Member{{UserID: initiator, Role: MemberAdmin, JoinedAt: now}}
	seen := map[string]bool{initiator: true}
	for _, id := range memberIDs {
		if id == initiator {
			return ConversationRef{}, fmt.Errorf("initiator cannot be added as a member: %w", ErrValidation)
		}
		if seen[id] {
			return ConversationRef{}, fmt.Errorf("member %s listed twice: %w", id, ErrValidation)
		}
		seen[id] = true
		if _, err := s.Store.GetUser(ctx, id); err != nil {
			return ConversationRef{}, fmt.Errorf("get member: %w", err)
		}
		members = append(members, Member{UserID: id, Role: MemberMember, JoinedAt: now})
	}

	conv, err := s.Store.CreateGroup(ctx, title, members)
	if err != nil {
		return ConversationRef{}, fmt.Errorf("create group: %w", err)
	}
	metrics.ConversationsCreated.WithLabelValues("group").Inc()
	return ConversationRef{ID: conv.ID, Title: conv.Title}, nil
}

// StartBotConversation resolves the user's direct conversation with the bot
// and greets the user when the conversation is new.
func (s *Service) StartBotConversation(ctx context.Context, userID string) (ConversationRef, error) {
	if s.Bot == nil {
		return ConversationRef{}, fmt.Errorf("bot: %w", ErrNotFound)
	}
	conv, created, err := s.resolveDirect(ctx, userID, s.Bot.ID)
	if err != nil {
		return ConversationRef{}, err
	}
	if created {
		if _, err := s.append(ctx, conv, s.Bot.ID, s.Bot.welcome(), TypeText, nil); err != nil {
			return ConversationRef{}, fmt.Errorf("welcome message: %w", err)
		}
	}
	return ConversationRef{ID: conv.ID}, nil
}

// ListConversations returns the user's conversations newest first, each
// with its unread count and online status.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	convs, err := s.Store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		unread, err := s.Store.UnreadCount(ctx, conv.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("unread count: %w", err)
		}
		summary, ok := s.summarize(conv, userID, unread)
		if !ok {
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Service) summarize(conv Conversation, viewerID string, unread int) (ConversationSummary, bool) {
	sum := ConversationSummary{
		ID:          conv.ID,
		IsGroup:     conv.IsGroup(),
		UnreadCount: unread,
		Members:     make([]MemberView, 0, len(conv.Members)),
	}
	for _, m := range conv.Members {
		online := s.Presence.IsOnline(m.User)
		sum.Members = append(sum.Members, MemberView{
			ID:        m.UserID,
			Username:  m.User.Username,
			AvatarURL: m.User.AvatarURL,
			Role:      m.Role,
			IsOnline:  online,
		})
		if conv.IsGroup() && m.UserID != viewerID && online {
			sum.IsOnline = true
		}
	}

	if conv.IsGroup() {
		sum.Username = *conv.Title
		return sum, true
	}

	other, ok := conv.Other(viewerID)
	if !ok {
		return ConversationSummary{}, false
	}
	sum.Username = other.User.Username
	sum.AvatarURL = other.User.AvatarURL
	sum.IsOnline = s.Presence.IsOnline(other.User)
	sum.OtherUserID = other.UserID
	return sum, true
}

// conversationFor returns the conversation if userID is one of its members.
func (s *Service) conversationFor(ctx context.Context, conversationID, userID string) (Conversation, error) {
	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	if !conv.HasMember(userID) {
		return Conversation{}, fmt.Errorf("user %s is not a member of conversation %s: %w", userID, conversationID, ErrForbidden)
	}
	return conv, nil
}

// ListMessages returns the conversation's messages in order together with
// the users currently typing. Messages from others are marked read
// afterwards.
func (s *Service) ListMessages(ctx context.Context, conversationID, viewerID string) (MessagePage, error) {
	if _, err := s.conversationFor(ctx, conversationID, viewerID); err != nil {
		return MessagePage{}, err
	}

	msgs, err := s.Store.ListMessages(ctx, conversationID, viewerID)
	if err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []MessageView{}
	}

	typers, err := s.Typing.ActiveTypers(ctx, conversationID, viewerID)
	if err != nil {
		s.Logger.Error("Could not read typing state", "conversation_id", conversationID, "error", err.Error())
	}
	if typers == nil {
		typers = []string{}
	}

	if _, err := s.Store.MarkRead(ctx, conversationID, viewerID); err != nil {
		return MessagePage{}, fmt.Errorf("mark read: %w", err)
	}

	return MessagePage{Messages: msgs, TypingUsers: typers}, nil
}

// MarkRead marks every message in the conversation not sent by viewerID as
// read.
func (s *Service) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	if _, err := s.Store.MarkRead(ctx, conversationID, viewerID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// UnreadCount counts the messages in the conversation that viewerID has not
// read and did not send.
func (s *Service) UnreadCount(ctx context.Context, conversationID, viewerID string) (int, error) {
	n, err := s.Store.UnreadCount(ctx, conversationID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// SendMessage appends a text message and, in a direct conversation with the
// bot, schedules the bot's reply.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, content string) (MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return MessageView{}, fmt.Errorf("message content is required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return MessageView{}, fmt.Errorf("message exceeds %d characters: %w", MaxContentLength, ErrValidation)
	}

	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return MessageView{}, fmt.Errorf("get conversation: %w", err)
	}
	view, err := s.append(ctx, conv, senderID, content, TypeText, nil)
	if err != nil {
		return MessageView{}, err
	}

	s.triggerBot(ctx, conv, view.Message)
	return view, nil
}

// SendMedia appends a message referencing uploaded media.
func (s *Service) SendMedia(ctx context.Context, conversationID, senderID, mediaURL string, kind MessageType) (MessageView, error) {
	if !kind.IsMedia() {
		return MessageView{}, fmt.Errorf("unsupported media type %q: %w", kind, ErrValidation)
	}
	if strings.TrimSpace(mediaURL) == "" {
		return MessageView{}, fmt.Errorf("media url is required: %w", ErrValidation)
	}

	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return MessageView{}, fmt.Errorf("get conversation: %w", err)
	}
	return s.append(ctx, conv, senderID, MediaPlaceholder, kind, &mediaURL)
}

// append stores a new unread message from senderID and returns the echo
// projection for the sender.
func (s *Service) append(ctx context.Context, conv Conversation, senderID, content string, kind MessageType, mediaURL *string) (MessageView, error) {
	var sender *Member
	for i := range conv.Members {
		if conv.Members[i].UserID == senderID {
			sender = &conv.Members[i]
			break
		}
	}
	if sender == nil {
		return MessageView{}, fmt.Errorf("user %s is not a member of conversation %s: %w", senderID, conv.ID, ErrForbidden)
	}

	msg, err := s.Store.InsertMessage(ctx, Message{
		ID:             NewID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		Type:           kind,
		MediaURL:       mediaURL,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return MessageView{}, fmt.Errorf("insert message: %w", err)
	}
	metrics.MessagesSent.WithLabelValues(string(kind)).Inc()

	if s.Cache != nil {
		if err := s.Cache.PushMessage(ctx, msg); err != nil {
			s.Logger.Error("Could not cache message", "message_id", msg.ID, "error", err.Error())
		}
	}

	return MessageView{Message: msg, Sender: SenderOf(sender.User)}, nil
}

// MarkTyping records that userID is composing a message.
func (s *Service) MarkTyping(ctx context.Context, conversationID, userID string) error {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.Typing.MarkTyping(ctx, conversationID, userID); err != nil {
		return fmt.Errorf("mark typing: %w", err)
	}
	return nil
}

// ToggleReaction adds label as userID's reaction to the message, or removes
// the existing reaction whatever its label.
func (s *Service) ToggleReaction(ctx context.Context, messageID, userID, label string) (ReactionStatus, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", fmt.Errorf("reaction is required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(label) > MaxReactionLength {
		return "", fmt.Errorf("reaction exceeds %d characters: %w", MaxReactionLength, ErrValidation)
	}

	msg, err := s.Store.GetMessage(ctx, messageID)
	if err != nil {
		return "", fmt.Errorf("get message: %w", err)
	}
	if _, err := s.conversationFor(ctx, msg.ConversationID, userID); err != nil {
		return "", err
	}

	status, err := s.Store.ToggleReaction(ctx, Reaction{
		ID:        NewID(),
		MessageID: messageID,
		UserID:    userID,
		Label:     label,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("toggle reaction: %w", err)
	}
	metrics.ReactionsToggled.WithLabelValues(string(status)).Inc()
	return status, nil
}

// TouchPresence records activity for userID.
func (s *Service) TouchPresence(ctx context.Context, userID string) error {
	return s.Presence.Touch(ctx, userID)
}

// Logout clears userID's activity so they show as offline.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.Presence.Clear(ctx, userID)
}

// triggerBot schedules a bot reply when msg was sent to the bot in a
// direct conversation.
func (s *Service) triggerBot(ctx context.Context, conv Conversation, msg Message) {
	if s.Bot == nil || conv.IsGroup() {
		return
	}
	other, ok := conv.Other(msg.SenderID)
	if !ok || other.UserID != s.Bot.ID {
		return
	}

	// History is read now so that messages sent while the job waits in the
	// queue never precede its trigger.
	history, err := s.botHistory(ctx, conv.ID, msg)
	if err != nil {
		s.Logger.Error("Could not load bot history", "conversation_id", conv.ID, "error", err.Error())
	}

	err = s.Bot.Jobs.Submit(func(ctx context.Context) {
		s.botReply(ctx, conv, msg, history)
	})
	if err != nil {
		metrics.BotJobsDropped.Inc()
		s.Logger.Warn("Could not schedule bot reply", "conversation_id", conv.ID, "error", err.Error())
		return
	}

	// Show the bot as typing until its reply lands.
	if err := s.Typing.MarkTyping(ctx, conv.ID, s.Bot.ID); err != nil {
		s.Logger.Error("Could not mark bot typing", "conversation_id", conv.ID, "error", err.Error())
	}
}

// botReply generates and appends the bot's answer to trigger.
func (s *Service) botReply(ctx context.Context, conv Conversation, trigger Message, history []Message) {
	log := s.Logger.With("conversation_id", conv.ID, "trigger_id", trigger.ID)

	genCtx, cancel := context.WithTimeout(ctx, s.Bot.timeout())
	defer cancel()

	start := time.Now()
	text, err := s.Bot.Generator.Generate(genCtx, trigger.Content, s.Bot.Turns(history))
	metrics.BotGenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BotFailures.Inc()
		log.Error("Bot generation failed", "error", err.Error())
		text = s.Bot.Fallback
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if utf8.RuneCountInString(text) > MaxContentLength {
		text = string([]rune(text)[:MaxContentLength])
	}

	appendCtx, cancelAppend := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancelAppend()
	reply, err := s.append(appendCtx, conv, s.Bot.ID, text, TypeText, nil)
	if err != nil {
		log.Error("Could not append bot reply", "error", err.Error())
		return
	}
	metrics.BotReplies.Inc()
	log.Info("Bot replied", "message_id", reply.ID)
}

// botHistory returns up to Bot.History messages sent before trigger, oldest
// first. The cache is used when it holds enough entries.
func (s *Service) botHistory(ctx context.Context, conversationID string, trigger Message) ([]Message, error) {
	n := s.Bot.history()

	var recent []Message
	if s.Cache != nil {
		cached, err := s.Cache.RecentMessages(ctx, conversationID, n+1)
		if err != nil {
			s.Logger.Error("Could not read message cache", "conversation_id", conversationID, "error", err.Error())
		} else if len(cached) > n {
			recent = cached
		}
	}
	if recent == nil {
		var err error
		recent, err = s.Store.RecentMessages(ctx, conversationID, n+1)
		if err != nil {
			return nil, fmt.Errorf("recent messages: %w", err)
		}
	}

	out := make([]Message, 0, n)
	for _, m := range recent {
		if !m.Before(trigger) {
			continue
		}
		if len(out) == n {
			break
		}
		out = append(out, m)
	}
	// Newest first to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
