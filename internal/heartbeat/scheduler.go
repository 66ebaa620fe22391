// Package heartbeat periodically flushes in-progress session time into the
// aggregation store, bounding what a crash can lose to one interval per
// active session.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"playtime/internal/database"
	"playtime/internal/metrics"
	"playtime/internal/tracker"
)

// DefaultInterval is used when a non-positive interval is configured.
const DefaultInterval = time.Minute

// Store is the part of the aggregation store the heartbeat writes to.
type Store interface {
	database.Crediter
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Scheduler credits every active session once per interval.
type Scheduler struct {
	tracker  *tracker.Tracker
	store    Store
	names    *tracker.NameCache
	clock    quartz.Clock
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	waiter quartz.Waiter
}

// New creates a scheduler. names may be nil.
func New(tr *tracker.Tracker, store Store, names *tracker.NameCache, clock quartz.Clock, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		tracker:  tr,
		store:    store,
		names:    names,
		clock:    clock,
		interval: interval,
		logger:   logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins ticking in the background until ctx is done or Stop is
// called. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info().Dur("interval", s.interval).Msg("Starting heartbeat")
	// TickerFunc never runs f concurrently with itself; a tick that overruns
	// the interval makes the ticker skip the missed ticks.
	s.waiter = s.clock.TickerFunc(ctx, s.interval, func() error {
		if err := s.runTick(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Heartbeat tick finished with errors")
		}
		// Never return the error: that would stop the ticker.
		return nil
	}, "heartbeat")
}

// Stop cancels the ticker and waits for an in-flight tick to return. It is
// safe to call more than once; a stopped scheduler does not start again.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, waiter := s.cancel, s.waiter
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	err := waiter.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	s.logger.Info().Msg("Heartbeat stopped")
	return err
}

// Flush runs one tick synchronously. It is used at shutdown so the time
// since the last tick is not lost.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.runTick(ctx)
}

func (s *Scheduler) runTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heartbeat tick panicked: %v", r)
			metrics.HeartbeatErrors.Inc()
		}
	}()

	metrics.HeartbeatTicks.Inc()
	defer func() { metrics.ActiveSessions.Set(float64(s.tracker.Len())) }()

	var errs []error
	credited := 0
	for _, key := range s.tracker.Sessions() {
		// A cancelled tick leaves the remaining sessions untouched; their
		// time stays pending.
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		name := s.displayName(ctx, key.UserID)
		now := s.clock.Now()
		seconds, err := s.tracker.Credit(key.UserID, key.Activity, func(seconds int64) error {
			return s.store.AddTime(ctx, key.UserID, name, key.Activity, seconds, now)
		})
		if err != nil {
			metrics.HeartbeatErrors.Inc()
			s.logger.Error().Err(err).
				Int64("user_id", key.UserID).
				Str("activity", key.Activity).
				Msg("Failed to credit session")
			errs = append(errs, fmt.Errorf("failed to credit %d/%s: %w", key.UserID, key.Activity, err))
			continue
		}
		if seconds > 0 {
			credited++
			metrics.SecondsCredited.WithLabelValues(metrics.SourceHeartbeat).Add(float64(seconds))
		}
	}

	s.logger.Debug().Int("credited", credited).Msg("Heartbeat tick")
	return errors.Join(errs...)
}

// displayName resolves the label written with a heartbeat credit: the cached
// name, then the stored one, then the bare user id.
func (s *Scheduler) displayName(ctx context.Context, userID int64) string {
	if s.names != nil {
		if name, ok := s.names.Lookup(userID); ok {
			return name
		}
	}

	name, err := s.store.DisplayName(ctx, userID)
	if err == nil && name != "" {
		if s.names != nil {
			s.names.Remember(userID, name)
		}
		return name
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		s.logger.Debug().Err(err).Int64("user_id", userID).Msg("Display name lookup failed")
	}
	return strconv.FormatInt(userID, 10)
}
