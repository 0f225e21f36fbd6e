package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetStream/nebula-chat/chat"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return New(cli), mr
}

func TestRedis_PushAndRecent(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	media := "https://cdn.example.com/cat.png"

	msgs := []chat.Message{
		{ID: "m1", Seq: 1, ConversationID: "c1", SenderID: "alice", Content: "one", Type: chat.TypeText, CreatedAt: at},
		{ID: "m2", Seq: 2, ConversationID: "c1", SenderID: "bob", Content: chat.MediaPlaceholder, Type: chat.TypeImage, MediaURL: &media, CreatedAt: at.Add(time.Second)},
		{ID: "m3", Seq: 3, ConversationID: "c2", SenderID: "carol", Content: "elsewhere", Type: chat.TypeText, CreatedAt: at},
	}
	for _, m := range msgs {
		require.NoError(t, r.PushMessage(ctx, m))
	}

	got, err := r.RecentMessages(ctx, "c1", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, msgs[1], got[0])
	assert.Equal(t, msgs[0], got[1])

	got, err = r.RecentMessages(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)

	got, err = r.RecentMessages(ctx, "empty", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedis_EvictsOldest(t *testing.T) {
	r, mr := newTestRedis(t)
	r.MaxSize = 3
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.PushMessage(ctx, chat.Message{
			ID:             fmt.Sprintf("m%d", i),
			Seq:            int64(i),
			ConversationID: "c1",
			Content:        fmt.Sprintf("msg %d", i),
			CreatedAt:      time.Now(),
		}))
	}

	got, err := r.RecentMessages(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"m5", "m4", "m3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.False(t, mr.Exists(messageKey("m1")))
	assert.False(t, mr.Exists(messageKey("m2")))
}

func TestRedis_SkipsExpiredHashes(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.PushMessage(ctx, chat.Message{ID: "m1", Seq: 1, ConversationID: "c1", CreatedAt: time.Now()}))
	require.NoError(t, r.PushMessage(ctx, chat.Message{ID: "m2", Seq: 2, ConversationID: "c1", CreatedAt: time.Now()}))
	mr.Del(messageKey("m1"))

	got, err := r.RecentMessages(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)
}

func TestTyping_Window(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	typing := NewTyping(r, 10*time.Second)
	typing.Now = func() time.Time { return now }

	read := now
	for user, age := range map[string]time.Duration{
		"alice": 0,
		"bob":   9 * time.Second,
		"carol": 10 * time.Second,
		"dave":  time.Minute,
	} {
		now = read.Add(-age)
		require.NoError(t, typing.MarkTyping(ctx, "c1", user))
	}
	now = read

	got, err := typing.ActiveTypers(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got)

	got, err = typing.ActiveTypers(ctx, "c1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got)

	// Expired marks were removed from the set.
	n, err := r.cli.ZCard(ctx, typingKey("c1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTyping_KeyExpires(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	typing := NewTyping(r, 10*time.Second)

	require.NoError(t, typing.MarkTyping(ctx, "c1", "bob"))
	assert.Equal(t, 10*time.Second, mr.TTL(typingKey("c1")))

	mr.FastForward(11 * time.Second)
	assert.False(t, mr.Exists(typingKey("c1")))
}
