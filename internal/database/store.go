package database

import (
	"context"
	"errors"
	"time"

	"playtime/internal/models"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("database: record not found")

// Crediter applies elapsed time to the durable counters.
type Crediter interface {
	AddTime(ctx context.Context, userID int64, displayName, activity string, seconds int64, when time.Time) error
}

// Reader answers windowed rollup queries.
type Reader interface {
	TopActivities(ctx context.Context, userID int64, period models.Period, limit int) ([]models.ActivityTime, error)
	Leaderboard(ctx context.Context, userIDs []int64, activity string, period models.Period, limit int) ([]models.LeaderboardEntry, error)
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Store is the aggregation store: per-activity totals, per-day rollups and
// the display name cache. AddTime must apply all three updates atomically.
// An empty display name never replaces a stored one.
type Store interface {
	Crediter
	Reader
	Close() error
}
