// Package query answers read-only playtime questions for the command layer.
package query

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/coder/quartz"

	"playtime/internal/database"
	"playtime/internal/models"
	"playtime/internal/tracker"
)

const (
	// DefaultPeriod is used when a command names no period.
	DefaultPeriod = models.PeriodWeek

	// allActivities is a limit no window reaches.
	allActivities = math.MaxInt32
)

// NowPlaying is a live view of one active session.
type NowPlaying struct {
	Activity  string
	StartedAt time.Time
	Elapsed   time.Duration
}

// Engine composes store reads with the live session view.
type Engine struct {
	store   database.Reader
	tracker *tracker.Tracker
	clock   quartz.Clock
}

// New creates an engine. tr may be nil if NowPlaying is not used.
func New(store database.Reader, tr *tracker.Tracker, clock quartz.Clock) *Engine {
	return &Engine{store: store, tracker: tr, clock: clock}
}

// ParsePeriod resolves a user-supplied period, defaulting to a week when
// empty.
func ParsePeriod(s string) (models.Period, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultPeriod, nil
	}
	return models.ParsePeriod(s)
}

// TopActivities ranks a user's activities within period.
func (e *Engine) TopActivities(ctx context.Context, userID int64, period string, limit int) ([]models.ActivityTime, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return e.store.TopActivities(ctx, userID, p, limit)
}

// Leaderboard ranks roster members within period, optionally for a single
// activity.
func (e *Engine) Leaderboard(ctx context.Context, roster []int64, activity, period string, limit int) ([]models.LeaderboardEntry, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return e.store.Leaderboard(ctx, roster, strings.TrimSpace(activity), p, limit)
}

// ActivityTime returns the seconds a user spent on one activity within
// period. The name match ignores case; the stored spelling is returned when
// found, otherwise the name as given with zero seconds.
func (e *Engine) ActivityTime(ctx context.Context, userID int64, period, activity string) (models.ActivityTime, error) {
	activity = strings.TrimSpace(activity)
	if activity == "" {
		return models.ActivityTime{}, fmt.Errorf("%w: empty activity", models.ErrInvalidInput)
	}
	rows, err := e.TopActivities(ctx, userID, period, allActivities)
	if err != nil {
		return models.ActivityTime{}, err
	}

	out := models.ActivityTime{Activity: activity}
	for _, r := range rows {
		if strings.EqualFold(r.Activity, activity) {
			// Rows are ranked, so the first match is the largest spelling.
			if out.Seconds == 0 {
				out.Activity = r.Activity
			}
			out.Seconds += r.Seconds
		}
	}
	return out, nil
}

// NowPlaying lists the user's active sessions with time elapsed since each
// started. Elapsed is a live estimate and includes time already credited.
func (e *Engine) NowPlaying(userID int64) []NowPlaying {
	if e.tracker == nil {
		return nil
	}
	now := e.clock.Now()
	sessions := e.tracker.ActiveSessionsFor(userID)
	out := make([]NowPlaying, 0, len(sessions))
	for _, s := range sessions {
		elapsed := now.Sub(s.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		out = append(out, NowPlaying{
			Activity:  s.Activity,
			StartedAt: s.StartedAt,
			Elapsed:   elapsed,
		})
	}
	return out
}
