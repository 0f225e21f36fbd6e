package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/GetStream/nebula-chat/api"
	"github.com/GetStream/nebula-chat/chat"
	"github.com/GetStream/nebula-chat/config"
	"github.com/GetStream/nebula-chat/memory"
	"github.com/GetStream/nebula-chat/postgres"
	"github.com/GetStream/nebula-chat/redis"
)

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// backends holds the connections opened for a command.
type backends struct {
	store  chat.Store
	pg     *postgres.Postgres
	redis  *redis.Redis
	checks map[string]api.Pinger
}

func (b *backends) Close() error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.pg != nil {
		errs = append(errs, b.pg.Close())
	}
	return errors.Join(errs...)
}

// connect opens the store and, when configured, the Redis cache. Without a
// database URL the in-memory store is used.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: map[string]api.Pinger{}}

	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.pg = pg
		b.store = pg
		b.checks["postgres"] = pg
		logger.Info("Connected to PostgreSQL")
	} else {
		b.store = memory.New()
		logger.Warn("NEBULA_DATABASE_URL is not set, using the in-memory store")
	}

	if cfg.RedisAddr != "" {
		r, err := redis.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = r
		b.checks["redis"] = r
		logger.Info("Connected to Redis", "addr", cfg.RedisAddr)
	}
	return b, nil
}

// ensureBot creates or refreshes the bot's user record.
func ensureBot(ctx context.Context, store chat.Store, cfg config.Bot) error {
	_, err := store.UpsertUser(ctx, chat.User{
		ID:       cfg.ID,
		Username: cfg.Name,
		Role:     chat.RoleUser,
	})
	if err != nil {
		return fmt.Errorf("ensure bot user: %w", err)
	}
	return nil
}

// prepare readies the store for serving. The in-memory store starts empty, so
// it gets the demo data that seed writes to a database.
func prepare(ctx context.Context, cfg *config.Config, b *backends, logger *slog.Logger, migrate bool) error {
	if b.pg == nil {
		return seed(ctx, b.store, cfg, logger)
	}
	if migrate {
		if err := b.pg.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("Database schema is up to date")
	}
	return ensureBot(ctx, b.store, cfg.Bot)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg, os.Stdout), nil
}
