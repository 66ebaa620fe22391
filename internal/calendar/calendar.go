// Package calendar maps instants to local days and named periods to
// inclusive day windows.
package calendar

import (
	"fmt"
	"time"

	"github.com/coder/quartz"

	"playtime/internal/models"
)

// DayLayout is the ISO date format stored in the day column.
const DayLayout = "2006-01-02"

// Calendar computes local days in a fixed timezone.
type Calendar struct {
	clock quartz.Clock
	loc   *time.Location
}

// New creates a calendar. A nil location means UTC.
func New(clock quartz.Clock, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: clock, loc: loc}
}

// LoadLocation resolves an IANA timezone name. If the name cannot be
// resolved it returns UTC together with the lookup error so the caller can
// warn about the fallback.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Location returns the configured timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant.
func (c *Calendar) Now() time.Time {
	return c.clock.Now()
}

// Day returns the local calendar date of t.
func (c *Calendar) Day(t time.Time) string {
	return t.In(c.loc).Format(DayLayout)
}

// Today returns the current local calendar date.
func (c *Calendar) Today() string {
	return c.Day(c.clock.Now())
}

// Window is an inclusive range of local days. AllTime windows are unbounded
// and are answered from the totals table instead of the daily rollups.
type Window struct {
	Start   string
	End     string
	AllTime bool
}

// Window resolves a period against the current local day.
func (c *Calendar) Window(p models.Period) (Window, error) {
	now := c.clock.Now().In(c.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)

	var back int
	switch p {
	case models.PeriodToday:
		back = 0
	case models.PeriodWeek:
		back = 6
	case models.PeriodMonth:
		back = 29
	case models.PeriodAll:
		return Window{AllTime: true}, nil
	default:
		return Window{}, fmt.Errorf("%w: %q", models.ErrInvalidPeriod, string(p))
	}

	return Window{
		Start: today.AddDate(0, 0, -back).Format(DayLayout),
		End:   today.Format(DayLayout),
	}, nil
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day string) bool {
	if w.AllTime {
		return true
	}
	return day >= w.Start && day <= w.End
}

// Days lists every day in a bounded window, oldest first.
func (w Window) Days() []string {
	if w.AllTime {
		return nil
	}
	start, err := time.Parse(DayLayout, w.Start)
	if err != nil {
		return nil
	}
	end, err := time.Parse(DayLayout, w.End)
	if err != nil {
		return nil
	}

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days
}
