package main

import (
	"context"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetStream/nebula-chat/config"
	"github.com/GetStream/nebula-chat/memory"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Parse()
	require.NoError(t, err)
	store := memory.New()
	logger := slogt.New(t)

	// A second run must not duplicate anything.
	require.NoError(t, seed(ctx, store, cfg, logger))
	require.NoError(t, seed(ctx, store, cfg, logger))

	assert.Equal(t, 3, store.Conversations())

	convs, err := store.ListConversations(ctx, "user-bob")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	unread := map[string]int{}
	for _, c := range convs {
		other, ok := c.Other("user-bob")
		require.True(t, ok)
		n, err := store.UnreadCount(ctx, c.ID, "user-bob")
		require.NoError(t, err)
		unread[other.UserID] = n
	}
	assert.Equal(t, map[string]int{"user-alice": 1, cfg.Bot.ID: 1}, unread)

	bot, err := store.GetUser(ctx, cfg.Bot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nebula AI", bot.Username)
}

func TestPrepare_MemoryStoreIsSeeded(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Parse()
	require.NoError(t, err)
	store := memory.New()

	require.NoError(t, prepare(ctx, cfg, &backends{store: store}, slogt.New(t), false))

	for _, u := range demoUsers {
		_, err := store.GetUser(ctx, u.ID)
		assert.NoError(t, err, "demo user %s", u.ID)
	}
	// Demo users can reach each other without any setup.
	conv, created, err := store.ResolveDirect(ctx, "user-bob", "user-alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, conv.Members, 2)
}
