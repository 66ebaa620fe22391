// Package events turns presence transitions into session starts, stops and
// immediate credits.
package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"playtime/internal/database"
	"playtime/internal/metrics"
	"playtime/internal/models"
	"playtime/internal/tracker"
)

// Handler applies transitions to the tracker and the store.
type Handler struct {
	tracker *tracker.Tracker
	store   database.Crediter
	names   *tracker.NameCache
	logger  zerolog.Logger
}

// New creates a handler. names may be nil.
func New(tr *tracker.Tracker, store database.Crediter, names *tracker.NameCache, logger zerolog.Logger) *Handler {
	return &Handler{
		tracker: tr,
		store:   store,
		names:   names,
		logger:  logger.With().Str("component", "events").Logger(),
	}
}

// Handle closes the session named by Previous and opens the one named by
// Current. Other sessions of the user are left alone. If crediting the
// closed session fails, the new session is still opened and the store error
// is returned.
func (h *Handler) Handle(ctx context.Context, t models.Transition) error {
	if h.names != nil {
		if t.DisplayName == "" {
			t.DisplayName, _ = h.names.Lookup(t.UserID)
		} else {
			h.names.Remember(t.UserID, t.DisplayName)
		}
	}

	if t.Previous == t.Current {
		metrics.PresenceTransitions.WithLabelValues(metrics.KindNoop).Inc()
		return nil
	}
	metrics.PresenceTransitions.WithLabelValues(kind(t)).Inc()
	defer func() { metrics.ActiveSessions.Set(float64(h.tracker.Len())) }()

	var creditErr error
	if t.Previous != "" {
		elapsed := h.tracker.Stop(t.UserID, t.Previous)
		if elapsed > 0 {
			if err := h.store.AddTime(ctx, t.UserID, t.DisplayName, t.Previous, elapsed, t.At); err != nil {
				creditErr = fmt.Errorf("failed to credit %s for user %d: %w", t.Previous, t.UserID, err)
			} else {
				metrics.SecondsCredited.WithLabelValues(metrics.SourceStop).Add(float64(elapsed))
			}
		}
		h.logger.Debug().
			Int64("user_id", t.UserID).
			Str("activity", t.Previous).
			Int64("seconds", elapsed).
			Msg("Session stopped")
	}

	if t.Current != "" {
		if h.tracker.Start(t.UserID, t.Current) {
			h.logger.Debug().
				Int64("user_id", t.UserID).
				Str("activity", t.Current).
				Msg("Session started")
		}
	}

	return creditErr
}

func kind(t models.Transition) string {
	switch {
	case t.Previous == "":
		return metrics.KindStart
	case t.Current == "":
		return metrics.KindStop
	default:
		return metrics.KindSwitch
	}
}
