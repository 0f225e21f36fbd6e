package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/GetStream/nebula-chat/chat"
	"github.com/GetStream/nebula-chat/config"
	"github.com/GetStream/nebula-chat/typing"
)

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo users and conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("seed: NEBULA_DATABASE_URL is required; serve seeds the in-memory store on start")
			}
			b, err := connect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			return seed(cmd.Context(), b.store, cfg, logger)
		},
	}
}

// Demo accounts created by seed.
var demoUsers = []chat.User{
	{
		ID:       "user-alice",
		Username: "Alice",
		Role:     chat.RoleUser,
		Location: &chat.GeoLocation{Country: "Canada", Lat: 43.6532, Lng: -79.3832},
	},
	{
		ID:       "user-bob",
		Username: "Bob",
		Role:     chat.RoleUser,
		Location: &chat.GeoLocation{Country: "Germany", Lat: 52.52, Lng: 13.405},
	},
}

// seed creates the demo users, a direct conversation with one unread message
// from Alice to Bob, and each user's bot conversation. It is safe to run more
// than once; only a new direct conversation gets the greeting.
func seed(ctx context.Context, store chat.Store, cfg *config.Config, logger *slog.Logger) error {
	if err := ensureBot(ctx, store, cfg.Bot); err != nil {
		return err
	}
	for _, u := range demoUsers {
		if _, err := store.UpsertUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}

	// Seeding never triggers generation, so the bot has no job runner.
	svc := &chat.Service{
		Store:  store,
		Typing: &typing.Registry{},
		Presence: &chat.Presence{
			Store: store,
			BotID: cfg.Bot.ID,
		},
		Bot:    &chat.Bot{ID: cfg.Bot.ID, Name: cfg.Bot.Name},
		Logger: logger,
	}

	alice, bob := demoUsers[0].ID, demoUsers[1].ID
	conv, created, err := store.ResolveDirect(ctx, alice, bob)
	if err != nil {
		return fmt.Errorf("seed direct conversation: %w", err)
	}
	if created {
		if _, err := svc.SendMessage(ctx, conv.ID, alice, "Hey Bob! Welcome to Nebula."); err != nil {
			return err
		}
	}

	for _, u := range demoUsers {
		if _, err := svc.StartBotConversation(ctx, u.ID); err != nil {
			return err
		}
	}
	logger.Info("Seeded demo data", "users", len(demoUsers), "conversation_id", conv.ID)
	return nil
}
