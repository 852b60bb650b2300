package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dmchat/chat"
	"dmchat/database"
	"dmchat/handlers"
	"dmchat/metrics"
	"dmchat/middleware"
	"dmchat/presence"
	"dmchat/realtime"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, e)
		},
	}
}

func serve(ctx context.Context, e *env) error {
	cfg, log := e.cfg, e.log

	m := metrics.New()
	tracker := presence.NewTracker(presence.WithWindow(cfg.Presence.OnlineWindow))
	m.TrackPresence(tracker.Len)

	hub := realtime.NewHub(cfg.Realtime.SendBuffer, log, m)
	go hub.Run(ctx)

	users := database.NewUserDirectory(e.db)
	svc := chat.NewService(
		users,
		database.NewMessageStore(e.db),
		database.NewVisibilityOverlay(e.db),
		realtime.NewRouter(hub, hub, log, m),
		chat.Options{RequireFriendship: cfg.Chat.RequireFriendship},
		log,
		m,
	)

	router := handlers.NewRouter(handlers.Deps{
		Chat:     svc,
		Users:    users,
		Presence: tracker,
		Hub:      hub,
		Tokens:   middleware.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Limiter:  middleware.NewRateLimiter(cfg.Limits.RPS, cfg.Limits.Burst, 10*time.Minute),
		Metrics:  m,
		Log:      log,
	})

	if cfg.Presence.CompactAfter > 0 {
		go compactPresence(ctx, tracker, cfg.Presence.CompactAfter, log)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_started", zap.String("addr", cfg.Server.Address), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", zap.Error(err))
		return err
	}
	log.Info("server_stopped")
	return nil
}

// compactPresence drops presence entries idle for longer than after
func compactPresence(ctx context.Context, tracker *presence.Tracker, after time.Duration, log *zap.Logger) {
	interval := after / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := tracker.Compact(after); n > 0 {
				log.Debug("presence_compacted", zap.Int("removed", n), zap.Int("remaining", tracker.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}
