package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/GetStream/nebula-chat/chat"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// Ping checks that the database is reachable.
func (pg *Postgres) Ping(ctx context.Context) error {
	return pg.bun.PingContext(ctx)
}

// SQLSTATE codes mapped onto chat errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// convertErr maps driver errors onto the chat error taxonomy.
func convertErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", chat.ErrNotFound, err)
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case uniqueViolation:
			return fmt.Errorf("%w: %w", chat.ErrConflict, err)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %w", chat.ErrNotFound, err)
		}
	}
	return err
}

// GetUser returns the user with the given id.
func (pg *Postgres) GetUser(ctx context.Context, id string) (chat.User, error) {
	var u user
	if err := pg.bun.NewSelect().Model(&u).Where("u.id = ?", id).Scan(ctx); err != nil {
		return chat.User{}, fmt.Errorf("select user %s: %w", id, convertErr(err))
	}
	return u.ChatUser(), nil
}

// UpsertUser inserts the user or updates its profile fields. Activity and
// creation time of an existing user are kept.
func (pg *Postgres) UpsertUser(ctx context.Context, u chat.User) (chat.User, error) {
	m := newUser(u)
	_, err := pg.bun.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("role = EXCLUDED.role").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("country = EXCLUDED.country").
		Set("lat = EXCLUDED.lat").
		Set("lng = EXCLUDED.lng").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return chat.User{}, fmt.Errorf("upsert user: %w", convertErr(err))
	}
	return m.ChatUser(), nil
}

// TouchUser sets the user's last activity. A nil at stores NULL.
func (pg *Postgres) TouchUser(ctx context.Context, id string, at *time.Time) error {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("last_active_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", id, chat.ErrNotFound)
	}
	return nil
}

// ResolveDirect finds or creates the direct conversation of a and b. Callers
// racing on the same pair are serialized by a transaction-scoped advisory
// lock; the unique direct_key index catches anything that slips past it.
func (pg *Postgres) ResolveDirect(ctx context.Context, a, b string) (chat.Conversation, bool, error) {
	key := chat.DirectKey(a, b)
	var (
		id      string
		created bool
	)
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		var existing conversation
		err := tx.NewSelect().Model(&existing).Column("id").Where("direct_key = ?", key).Limit(1).Scan(ctx)
		if err == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select: %w", err)
		}

		now := time.Now()
		conv := &conversation{ID: chat.NewID(), DirectKey: &key, CreatedAt: now}
		if _, err := tx.NewInsert().Model(conv).Exec(ctx); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		members := []member{
			{ConversationID: conv.ID, UserID: a, Role: string(chat.MemberMember), JoinedAt: now},
			{ConversationID: conv.ID, UserID: b, Role: string(chat.MemberMember), JoinedAt: now},
		}
		if _, err := tx.NewInsert().Model(&members).Exec(ctx); err != nil {
			return fmt.Errorf("insert members: %w", err)
		}
		id = conv.ID
		created = true
		return nil
	})
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("resolve direct: %w", convertErr(err))
	}

	conv, err := pg.GetConversation(ctx, id)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	return conv, created, nil
}

// CreateGroup inserts a titled conversation and its members in one
// transaction.
func (pg *Postgres) CreateGroup(ctx context.Context, title string, members []chat.Member) (chat.Conversation, error) {
	conv := &conversation{ID: chat.NewID(), Title: &title, CreatedAt: time.Now()}
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(conv).Exec(ctx); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		rows := make([]member, len(members))
		for i, m := range members {
			rows[i] = member{
				ConversationID: conv.ID,
				UserID:         m.UserID,
				Role:           string(m.Role),
				JoinedAt:       m.JoinedAt,
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert members: %w", err)
		}
		return nil
	})
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create group: %w", convertErr(err))
	}
	return pg.GetConversation(ctx, conv.ID)
}

func withMembers(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Members", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("m.joined_at ASC", "m.user_id ASC")
		}).
		Relation("Members.User")
}

// GetConversation returns the conversation with its members.
func (pg *Postgres) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	var conv conversation
	err := pg.bun.NewSelect().
		Model(&conv).
		Apply(withMembers).
		Where("c.id = ?", id).
		Scan(ctx)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("select conversation %s: %w", id, convertErr(err))
	}
	return conv.ChatConversation(), nil
}

// ListConversations returns the user's conversations, newest first.
func (pg *Postgres) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	memberOf := pg.bun.NewSelect().
		Model((*member)(nil)).
		Column("conversation_id").
		Where("user_id = ?", userID)

	var convs []conversation
	err := pg.bun.NewSelect().
		Model(&convs).
		Apply(withMembers).
		Where("c.id IN (?)", memberOf).
		Order("c.created_at DESC", "c.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]chat.Conversation, len(convs))
	for i, c := range convs {
		out[i] = c.ChatConversation()
	}
	return out, nil
}

// InsertMessage inserts a message into the database. The returned message
// holds generated fields such as the sequence number.
func (pg *Postgres) InsertMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	m := newMessage(msg)
	if m.ID == "" {
		m.ID = chat.NewID()
	}
	if _, err := pg.bun.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return chat.Message{}, fmt.Errorf("insert: %w", convertErr(err))
	}
	return m.ChatMessage(), nil
}

// GetMessage returns the message with the given id.
func (pg *Postgres) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	var m message
	if err := pg.bun.NewSelect().Model(&m).Where("msg.id = ?", id).Scan(ctx); err != nil {
		return chat.Message{}, fmt.Errorf("select message %s: %w", id, convertErr(err))
	}
	return m.ChatMessage(), nil
}

// ListMessages returns every message in the conversation in ascending order
// with reaction totals for viewerID.
func (pg *Postgres) ListMessages(ctx context.Context, conversationID, viewerID string) ([]chat.MessageView, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("Sender").
		Where("msg.conversation_id = ?", conversationID).
		Order("msg.created_at ASC", "msg.seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	if len(msgs) == 0 {
		return []chat.MessageView{}, nil
	}

	var tallies []reactionTally
	err = pg.bun.NewSelect().
		Model((*reaction)(nil)).
		ColumnExpr("r.message_id").
		ColumnExpr("count(*) AS count").
		ColumnExpr("bool_or(r.user_id = ?) AS reacted", viewerID).
		Join("JOIN messages AS msg ON msg.id = r.message_id").
		Where("msg.conversation_id = ?", conversationID).
		Group("r.message_id").
		Scan(ctx, &tallies)
	if err != nil {
		return nil, fmt.Errorf("scan reactions: %w", err)
	}
	byMessage := make(map[string]reactionTally, len(tallies))
	for _, t := range tallies {
		byMessage[t.MessageID] = t
	}

	out := make([]chat.MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = m.ChatView(byMessage[m.ID])
	}
	return out, nil
}

// RecentMessages returns up to limit messages, newest first.
func (pg *Postgres) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Where("msg.conversation_id = ?", conversationID).
		Order("msg.created_at DESC", "msg.seq DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.ChatMessage()
	}
	return out, nil
}

// MarkRead flags every unread message not sent by viewerID as read.
func (pg *Postgres) MarkRead(ctx context.Context, conversationID, viewerID string) (int, error) {
	res, err := pg.bun.NewUpdate().
		Model((*message)(nil)).
		Set("is_read = TRUE").
		Where("conversation_id = ?", conversationID).
		Where("sender_id <> ?", viewerID).
		Where("is_read = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// UnreadCount counts unread messages not sent by viewerID.
func (pg *Postgres) UnreadCount(ctx context.Context, conversationID, viewerID string) (int, error) {
	n, err := pg.bun.NewSelect().
		Model((*message)(nil)).
		Where("conversation_id = ?", conversationID).
		Where("sender_id <> ?", viewerID).
		Where("is_read = FALSE").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// errReactionRace reports that a concurrent toggle inserted a reaction
// between our delete and insert.
var errReactionRace = errors.New("reaction inserted concurrently")

// ToggleReaction removes the user's reaction on the message or inserts r when
// there is none.
func (pg *Postgres) ToggleReaction(ctx context.Context, r chat.Reaction) (chat.ReactionStatus, error) {
	status, err := pg.toggleReaction(ctx, r)
	if errors.Is(err, errReactionRace) {
		status, err = pg.toggleReaction(ctx, r)
	}
	if errors.Is(err, errReactionRace) {
		return "", fmt.Errorf("toggle reaction: %w", chat.ErrConflict)
	}
	return status, err
}

func (pg *Postgres) toggleReaction(ctx context.Context, r chat.Reaction) (chat.ReactionStatus, error) {
	res, err := pg.bun.NewDelete().
		Model((*reaction)(nil)).
		Where("message_id = ?", r.MessageID).
		Where("user_id = ?", r.UserID).
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("delete reaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return chat.ReactionRemoved, nil
	}

	rm := &reaction{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Reaction:  r.Label,
		CreatedAt: r.CreatedAt,
	}
	if rm.ID == "" {
		rm.ID = chat.NewID()
	}
	res, err = pg.bun.NewInsert().
		Model(rm).
		On("CONFLICT (message_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("insert reaction: %w", convertErr(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", errReactionRace
	}
	return chat.ReactionAdded, nil
}
