package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput is returned for malformed query or credit arguments.
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidPeriod is returned for an unrecognized window period.
var ErrInvalidPeriod = fmt.Errorf("%w: unknown period", ErrInvalidInput)

// Period names a query window.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// Periods lists every valid period in display order.
var Periods = []Period{PeriodToday, PeriodWeek, PeriodMonth, PeriodAll}

// ParsePeriod validates a period string. Matching is case-insensitive.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q (expected today, week, month or all)", ErrInvalidPeriod, s)
	}
	return p, nil
}

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return true
	}
	return false
}

// SessionKey identifies one active (user, activity) session
type SessionKey struct {
	UserID   int64
	Activity string
}

// ActiveSession is a read-only view of an in-progress session
type ActiveSession struct {
	Activity       string
	StartedAt      time.Time
	LastCreditedAt time.Time
}

// Transition is a presence change reported by the chat layer
type Transition struct {
	UserID      int64
	DisplayName string
	Previous    string
	Current     string
	At          time.Time
}

// ActivityTime is one row of a per-user activity ranking
type ActivityTime struct {
	Activity string
	Seconds  int64
}

// LeaderboardEntry is one row of a cross-user ranking
type LeaderboardEntry struct {
	UserID      int64
	DisplayName string
	Seconds     int64
}
