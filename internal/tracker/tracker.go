// Package tracker keeps the in-memory set of active (user, activity)
// sessions.
//
// Each session remembers when it started and when it was last credited.
// Every credit, whether from a heartbeat tick or from a stop, covers only the
// time since the last credit, so time flushed by the heartbeat is never
// credited again when the session ends.
package tracker

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"

	"playtime/internal/models"
)

type session struct {
	startedAt      time.Time
	lastCreditedAt time.Time
}

// Tracker holds active sessions keyed by user, then activity. All methods
// are safe for concurrent use.
type Tracker struct {
	clock quartz.Clock

	mu     sync.Mutex
	active map[int64]map[string]*session
}

// New creates an empty tracker.
func New(clock quartz.Clock) *Tracker {
	return &Tracker{
		clock:  clock,
		active: make(map[int64]map[string]*session),
	}
}

// Start opens a session unless one is already active for the pair. It
// reports whether a new session was created; an existing session keeps its
// timestamps.
func (t *Tracker) Start(userID int64, activity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := t.active[userID]
	if sessions == nil {
		sessions = make(map[string]*session)
		t.active[userID] = sessions
	}
	if _, ok := sessions[activity]; ok {
		return false
	}

	now := t.clock.Now()
	sessions[activity] = &session{startedAt: now, lastCreditedAt: now}
	return true
}

// Stop closes a session and returns the whole seconds accrued since its last
// credit. Stopping an unknown session returns 0 and changes nothing.
func (t *Tracker) Stop(userID int64, activity string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(userID, activity)
	if s == nil {
		return 0
	}

	elapsed := wholeSeconds(t.clock.Now().Sub(s.lastCreditedAt))
	delete(t.active[userID], activity)
	if len(t.active[userID]) == 0 {
		delete(t.active, userID)
	}
	return elapsed
}

// CreditTick returns the whole seconds accrued since the last credit and
// marks them credited. The session stays active.
func (t *Tracker) CreditTick(userID int64, activity string) int64 {
	n, _ := t.Credit(userID, activity, nil)
	return n
}

// Credit is CreditTick with a commit hook. apply receives the pending
// seconds while the tracker is locked; the seconds are marked credited only
// if apply returns nil. On error the same seconds remain pending.
func (t *Tracker) Credit(userID int64, activity string, apply func(seconds int64) error) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(userID, activity)
	if s == nil {
		return 0, nil
	}

	elapsed := wholeSeconds(t.clock.Now().Sub(s.lastCreditedAt))
	if elapsed <= 0 {
		return 0, nil
	}
	if apply != nil {
		if err := apply(elapsed); err != nil {
			return 0, err
		}
	}

	// Advance by the credited whole seconds only; the sub-second remainder
	// carries into the next credit.
	s.lastCreditedAt = s.lastCreditedAt.Add(time.Duration(elapsed) * time.Second)
	return elapsed, nil
}

// ActiveSessionsFor returns the user's active sessions, oldest first.
func (t *Tracker) ActiveSessionsFor(userID int64) []models.ActiveSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.ActiveSession, 0, len(t.active[userID]))
	for activity, s := range t.active[userID] {
		out = append(out, models.ActiveSession{
			Activity:       activity,
			StartedAt:      s.startedAt,
			LastCreditedAt: s.lastCreditedAt,
		})
	}
	slices.SortFunc(out, func(a, b models.ActiveSession) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Activity, b.Activity)
	})
	return out
}

// Sessions returns a snapshot of every active key ordered by user, then
// activity.
func (t *Tracker) Sessions() []models.SessionKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var keys []models.SessionKey
	for userID, sessions := range t.active {
		for activity := range sessions {
			keys = append(keys, models.SessionKey{UserID: userID, Activity: activity})
		}
	}
	slices.SortFunc(keys, func(a, b models.SessionKey) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		return cmp.Compare(a.Activity, b.Activity)
	})
	return keys
}

// Len returns the number of active sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, sessions := range t.active {
		n += len(sessions)
	}
	return n
}

// lookup must be called with t.mu held.
func (t *Tracker) lookup(userID int64, activity string) *session {
	sessions := t.active[userID]
	if sessions == nil {
		return nil
	}
	return sessions[activity]
}

func wholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
