package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetStream/nebula-chat/chat"
)

func TestUser_RoundTripsLocation(t *testing.T) {
	avatar := "https://cdn.example.com/a.png"
	in := chat.User{
		ID:        "alice",
		Username:  "alice",
		Role:      chat.RoleAdmin,
		AvatarURL: &avatar,
		Location:  &chat.GeoLocation{Country: "NL", Lat: 52.37, Lng: 4.89},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(in, newUser(in).ChatUser()); diff != "" {
		t.Errorf("ChatUser() mismatch (-want +got):\n%s", diff)
	}

	noLoc := newUser(chat.User{ID: "bob", Username: "bob"})
	if noLoc.Role != string(chat.RoleUser) {
		t.Errorf("Got role %q, want user", noLoc.Role)
	}
	if noLoc.ChatUser().Location != nil {
		t.Error("Got location for a user without one")
	}
}

func TestMessage_ChatView(t *testing.T) {
	m := message{
		ID:             "m1",
		Seq:            7,
		ConversationID: "c1",
		SenderID:       "alice",
		Content:        "hi",
		Type:           "text",
		Sender:         &user{ID: "alice", Username: "alice"},
	}
	got := m.ChatView(reactionTally{MessageID: "m1", Count: 2, Reacted: true})
	want := chat.MessageView{
		Message: chat.Message{
			ID:             "m1",
			Seq:            7,
			ConversationID: "c1",
			SenderID:       "alice",
			Content:        "hi",
			Type:           chat.TypeText,
		},
		Sender:        chat.Sender{ID: "alice", Username: "alice"},
		ReactionCount: 2,
		UserReacted:   true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ChatView() mismatch (-want +got):\n%s", diff)
	}
}

// connect returns a migrated store on NEBULA_TEST_DATABASE_URL.
func connect(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("NEBULA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NEBULA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, pg.Migrate(ctx))
	return pg
}

func newUsers(t *testing.T, pg *Postgres, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		id := chat.NewID()
		_, err := pg.UpsertUser(context.Background(), chat.User{ID: id, Username: "user-" + id})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestPostgres_ResolveDirectConcurrent(t *testing.T) {
	pg := connect(t)
	ctx := context.Background()
	users := newUsers(t, pg, 2)

	const n = 8
	ids := make([]string, n)
	created := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := users[0], users[1]
			if i%2 == 1 {
				a, b = b, a
			}
			conv, c, err := pg.ResolveDirect(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = conv.ID
			created[i] = c
		}(i)
	}
	wg.Wait()

	creations := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			creations++
		}
	}
	assert.Equal(t, 1, creations)

	conv, err := pg.GetConversation(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, conv.Members, 2)
	assert.False(t, conv.IsGroup())
}

func TestPostgres_MessagesAndReactions(t *testing.T) {
	pg := connect(t)
	ctx := context.Background()
	users := newUsers(t, pg, 2)
	alice, bob := users[0], users[1]

	conv, _, err := pg.ResolveDirect(ctx, alice, bob)
	require.NoError(t, err)

	at := time.Now().Truncate(time.Millisecond)
	var first chat.Message
	for i, content := range []string{"one", "two", "three"} {
		m, err := pg.InsertMessage(ctx, chat.Message{
			ID:             chat.NewID(),
			ConversationID: conv.ID,
			SenderID:       alice,
			Content:        content,
			Type:           chat.TypeText,
			CreatedAt:      at,
		})
		require.NoError(t, err)
		assert.NotZero(t, m.Seq)
		if i == 0 {
			first = m
		}
	}

	n, err := pg.UnreadCount(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	status, err := pg.ToggleReaction(ctx, chat.Reaction{MessageID: first.ID, UserID: bob, Label: "like", CreatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, chat.ReactionAdded, status)

	views, err := pg.ListMessages(ctx, conv.ID, bob)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{views[0].Content, views[1].Content, views[2].Content})
	assert.Equal(t, 1, views[0].ReactionCount)
	assert.True(t, views[0].UserReacted)
	assert.Equal(t, alice, views[0].Sender.ID)

	status, err = pg.ToggleReaction(ctx, chat.Reaction{MessageID: first.ID, UserID: bob, Label: "love", CreatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, chat.ReactionRemoved, status)

	changed, err := pg.MarkRead(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)
	n, err = pg.UnreadCount(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	recent, err := pg.RecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Content)

	_, err = pg.GetMessage(ctx, chat.NewID())
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestPostgres_TouchUser(t *testing.T) {
	pg := connect(t)
	ctx := context.Background()
	id := newUsers(t, pg, 1)[0]

	now := time.Now()
	require.NoError(t, pg.TouchUser(ctx, id, &now))
	u, err := pg.GetUser(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u.LastActiveAt)

	require.NoError(t, pg.TouchUser(ctx, id, nil))
	u, err = pg.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u.LastActiveAt)

	assert.ErrorIs(t, pg.TouchUser(ctx, chat.NewID(), &now), chat.ErrNotFound)
}
