package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GetStream/nebula-chat/api"
	"github.com/GetStream/nebula-chat/api/validator"
	"github.com/GetStream/nebula-chat/chat"
	"github.com/GetStream/nebula-chat/config"
	"github.com/GetStream/nebula-chat/llm"
	"github.com/GetStream/nebula-chat/redis"
	"github.com/GetStream/nebula-chat/typing"
	"github.com/GetStream/nebula-chat/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the database schema before serving")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) error {
	b, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := prepare(ctx, cfg, b, logger, migrate); err != nil {
		return err
	}

	gen, err := llm.New(llm.Config{
		Provider:     cfg.Bot.ResolvedProvider(),
		Model:        cfg.Bot.Model,
		APIKey:       cfg.Bot.APIKey,
		BaseURL:      cfg.Bot.BaseURL,
		MaxTokens:    cfg.Bot.MaxTokens,
		SystemPrompt: cfg.Bot.SystemPrompt,
	})
	if err != nil {
		return err
	}
	pool := worker.New(logger, cfg.Bot.Workers, cfg.Bot.Queue)

	svc := &chat.Service{
		Store:  b.store,
		Typing: newTyping(cfg, b.redis),
		Presence: &chat.Presence{
			Store:  b.store,
			BotID:  cfg.Bot.ID,
			Window: cfg.PresenceWindow,
		},
		Bot: &chat.Bot{
			ID:        cfg.Bot.ID,
			Name:      cfg.Bot.Name,
			Generator: gen,
			Jobs:      pool,
			History:   cfg.Bot.History,
			Timeout:   cfg.Bot.Timeout,
			Fallback:  cfg.Bot.Fallback,
		},
		Logger: logger,
	}
	if b.redis != nil {
		svc.Cache = b.redis
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: &api.API{
			Logger: logger,
			Chat:   svc,
			Val:    validator.New(),
			Checks: b.checks,
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", "addr", cfg.Addr, "bot_provider", cfg.Bot.ResolvedProvider())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Stop accepting requests before draining the bot queue so no job is
		// submitted to a closed pool.
		errHTTP := srv.Shutdown(shutdownCtx)
		errPool := pool.Close(shutdownCtx)
		return errors.Join(errHTTP, errPool)
	})
	return g.Wait()
}

func newTyping(cfg *config.Config, r *redis.Redis) chat.TypingRegistry {
	if cfg.TypingBackend == "redis" && r != nil {
		return redis.NewTyping(r, cfg.TypingWindow)
	}
	return &typing.Registry{Window: cfg.TypingWindow}
}
