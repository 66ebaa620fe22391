// Package memory is a process-local database.Store. Nothing survives a
// restart; it backs STORE_DRIVER=memory and component tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"playtime/internal/calendar"
	"playtime/internal/database"
	"playtime/internal/models"
)

type totalKey struct {
	userID   int64
	activity string
}

type dailyKey struct {
	userID   int64
	activity string
	day      string
}

type nameRow struct {
	name      string
	updatedAt time.Time
}

// Store keeps totals, daily rollups and names in maps guarded by one lock.
type Store struct {
	cal *calendar.Calendar

	mu     sync.RWMutex
	totals map[totalKey]int64
	daily  map[dailyKey]int64
	names  map[int64]nameRow
}

var _ database.Store = (*Store)(nil)

// New creates an empty store that buckets days with cal.
func New(cal *calendar.Calendar) *Store {
	return &Store{
		cal:    cal,
		totals: make(map[totalKey]int64),
		daily:  make(map[dailyKey]int64),
		names:  make(map[int64]nameRow),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// AddTime credits seconds to the total and to when's local day.
func (s *Store) AddTime(_ context.Context, userID int64, displayName, activity string, seconds int64, when time.Time) error {
	if seconds <= 0 {
		return nil
	}
	if activity == "" {
		return fmt.Errorf("%w: empty activity", models.ErrInvalidInput)
	}
	if when.IsZero() {
		when = s.cal.Now()
	}
	day := s.cal.Day(when)

	s.mu.Lock()
	defer s.mu.Unlock()

	if displayName != "" {
		s.names[userID] = nameRow{name: displayName, updatedAt: s.cal.Now()}
	}
	s.totals[totalKey{userID, activity}] += seconds
	s.daily[dailyKey{userID, activity, day}] += seconds
	return nil
}

// TopActivities ranks a user's activities within the period.
func (s *Store) TopActivities(_ context.Context, userID int64, period models.Period, limit int) ([]models.ActivityTime, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidInput)
	}
	w, err := s.cal.Window(period)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]int64)
	if w.AllTime {
		for k, v := range s.totals {
			if k.userID == userID {
				sums[k.activity] += v
			}
		}
	} else {
		for k, v := range s.daily {
			if k.userID == userID && w.Contains(k.day) {
				sums[k.activity] += v
			}
		}
	}

	rows := make([]models.ActivityTime, 0, len(sums))
	for activity, secs := range sums {
		rows = append(rows, models.ActivityTime{Activity: activity, Seconds: secs})
	}
	return models.RankActivities(rows, limit), nil
}

// Leaderboard ranks the given users by seconds within the period.
func (s *Store) Leaderboard(_ context.Context, userIDs []int64, activity string, period models.Period, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidInput)
	}
	w, err := s.cal.Window(period)
	if err != nil {
		return nil, err
	}

	roster := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		roster[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[int64]int64)
	add := func(uid int64, act string, v int64) {
		if _, ok := roster[uid]; !ok {
			return
		}
		if activity != "" && act != activity {
			return
		}
		sums[uid] += v
	}
	if w.AllTime {
		for k, v := range s.totals {
			add(k.userID, k.activity, v)
		}
	} else {
		for k, v := range s.daily {
			if w.Contains(k.day) {
				add(k.userID, k.activity, v)
			}
		}
	}

	rows := make([]models.LeaderboardEntry, 0, len(sums))
	for uid, secs := range sums {
		rows = append(rows, models.LeaderboardEntry{UserID: uid, DisplayName: s.names[uid].name, Seconds: secs})
	}
	return models.RankLeaderboard(rows, limit), nil
}

// DisplayName returns the last non-empty name recorded for a user.
func (s *Store) DisplayName(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.names[userID]
	if !ok {
		return "", database.ErrNotFound
	}
	return row.name, nil
}
