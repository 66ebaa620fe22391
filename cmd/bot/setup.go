package main

import (
	"fmt"
	"os"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"playtime/internal/calendar"
	"playtime/internal/config"
	"playtime/internal/database"
	"playtime/internal/database/memory"
	"playtime/internal/database/redis"
)

// setupLogger configures the logger based on configuration
func setupLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// setupCalendar resolves the configured timezone, falling back to UTC with a
// warning.
func setupCalendar(cfg *config.Config, clock quartz.Clock, logger zerolog.Logger) *calendar.Calendar {
	loc, err := calendar.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Falling back to UTC for daily rollups")
	}
	return calendar.New(clock, loc)
}

// openStore opens the aggregation store selected by STORE_DRIVER.
func openStore(cfg *config.Config, cal *calendar.Calendar, logger zerolog.Logger) (database.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		return database.NewRepository(db, cal), nil
	case config.DriverPostgres:
		db, err := database.OpenPostgres(cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, err
		}
		return database.NewRepository(db, cal), nil
	case config.DriverRedis:
		return redis.Open(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cal)
	case config.DriverMemory:
		logger.Warn().Msg("Using the in-memory store; playtime is lost on restart")
		return memory.New(cal), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
