package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"playtime/internal/config"
	"playtime/internal/discord"
	"playtime/internal/events"
	"playtime/internal/heartbeat"
	"playtime/internal/metrics"
	"playtime/internal/query"
	"playtime/internal/tracker"
)

// shutdownTimeout bounds the final flush and server shutdown.
const shutdownTimeout = 15 * time.Second

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("store", cfg.StoreDriver).
		Dur("heartbeat", cfg.HeartbeatInterval()).
		Strs("activity_types", cfg.ActivityTypes()).
		Msg("Starting playtime bot")

	clock := quartz.NewReal()
	cal := setupCalendar(cfg, clock, logger)

	store, err := openStore(cfg, cal, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}()
	logger.Info().Str("driver", cfg.StoreDriver).Str("timezone", cal.Location().String()).Msg("Store initialized")

	names, err := tracker.NewNameCache(cfg.NameCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create name cache: %w", err)
	}
	sessions := tracker.New(clock)
	handler := events.New(sessions, store, names, logger)
	engine := query.New(store, sessions, clock)
	scheduler := heartbeat.New(sessions, store, names, clock, cfg.HeartbeatInterval(), logger)

	bot, err := discord.New(cfg.DiscordToken, cfg.ActivityTypes(), handler, engine, clock, logger)
	if err != nil {
		return fmt.Errorf("failed to create Discord bot: %w", err)
	}

	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsAddr, logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Start(ctx); err != nil {
		return err
	}
	scheduler.Start(ctx)

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		// Close the gateway first so no transition races the final flush.
		if err := bot.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error closing Discord session")
		}
		if err := scheduler.Stop(); err != nil {
			return fmt.Errorf("failed to stop heartbeat: %w", err)
		}
		if err := scheduler.Flush(shutdownCtx); err != nil {
			return fmt.Errorf("final heartbeat flush: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Stop(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Shutdown finished with errors")
	}

	logger.Info().Msg("Playtime bot stopped")
	return nil
}
