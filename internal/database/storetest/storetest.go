// Package storetest holds the behaviour every database.Store backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playtime/internal/calendar"
	"playtime/internal/database"
	"playtime/internal/models"
)

// Now is the instant the suite's calendar reports. It is late in the local
// day so that "today minus N" arithmetic never straddles midnight.
var Now = time.Date(2024, 3, 10, 22, 30, 0, 0, Zone)

// Zone is the suite's local timezone.
var Zone = time.FixedZone("UTC-5", -5*3600)

// Factory opens an empty store bound to cal.
type Factory func(t *testing.T, cal *calendar.Calendar) database.Store

// Run executes the conformance suite against a backend.
func Run(t *testing.T, open Factory) {
	setup := func(t *testing.T) (database.Store, *calendar.Calendar) {
		t.Helper()
		clk := quartz.NewMock(t)
		clk.Set(Now).MustWait(context.Background())
		cal := calendar.New(clk, Zone)
		s := open(t, cal)
		t.Cleanup(func() { _ = s.Close() })
		return s, cal
	}

	t.Run("Additivity", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		credits := []int64{60, 60, 60, 10, 1}
		var sum int64
		for i, c := range credits {
			when := Now.Add(-time.Duration(i) * 24 * time.Hour)
			require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", c, when))
			sum += c
		}

		all, err := s.TopActivities(ctx, 1, models.PeriodAll, 10)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, sum, all[0].Seconds)

		month, err := s.TopActivities(ctx, 1, models.PeriodMonth, 10)
		require.NoError(t, err)
		require.Len(t, month, 1)
		assert.Equal(t, sum, month[0].Seconds, "daily rollups must add up to the total")
	})

	t.Run("NonPositiveIsNoop", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 0, Now))
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", -30, Now))

		rows, err := s.TopActivities(ctx, 1, models.PeriodAll, 10)
		require.NoError(t, err)
		assert.Empty(t, rows)

		_, err = s.DisplayName(ctx, 1)
		assert.True(t, errors.Is(err, database.ErrNotFound))
	})

	t.Run("EmptyActivityRejected", func(t *testing.T) {
		s, _ := setup(t)

		err := s.AddTime(context.Background(), 1, "alice", "", 30, Now)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("SingleDayExample", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		for _, c := range []int64{60, 60, 60, 10} {
			require.NoError(t, s.AddTime(ctx, 7, "U", "Chess", c, Now))
		}

		today, err := s.TopActivities(ctx, 7, models.PeriodToday, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 190}}, today)

		all, err := s.TopActivities(ctx, 7, models.PeriodAll, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 190}}, all)
	})

	t.Run("WeekBoundary", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		require.NoError(t, s.AddTime(ctx, 1, "alice", "Inside", 100, Now.AddDate(0, 0, -6)))
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Outside", 200, Now.AddDate(0, 0, -7)))

		week, err := s.TopActivities(ctx, 1, models.PeriodWeek, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.ActivityTime{{Activity: "Inside", Seconds: 100}}, week)

		month, err := s.TopActivities(ctx, 1, models.PeriodMonth, 10)
		require.NoError(t, err)
		assert.Len(t, month, 2)

		today, err := s.TopActivities(ctx, 1, models.PeriodToday, 10)
		require.NoError(t, err)
		assert.Empty(t, today)
	})

	t.Run("MonthBoundary", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		require.NoError(t, s.AddTime(ctx, 1, "alice", "Inside", 100, Now.AddDate(0, 0, -29)))
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Outside", 200, Now.AddDate(0, 0, -30)))

		month, err := s.TopActivities(ctx, 1, models.PeriodMonth, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.ActivityTime{{Activity: "Inside", Seconds: 100}}, month)

		all, err := s.TopActivities(ctx, 1, models.PeriodAll, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.ActivityTime{
			{Activity: "Outside", Seconds: 200},
			{Activity: "Inside", Seconds: 100},
		}, all)
	})

	t.Run("LocalDayUsesZone", func(t *testing.T) {
		s, cal := setup(t)
		ctx := context.Background()

		// 03:00 UTC on the 11th is 22:00 on the 10th in the suite zone.
		when := time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC)
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 50, when))
		require.Equal(t, cal.Today(), cal.Day(when))

		today, err := s.TopActivities(ctx, 1, models.PeriodToday, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 50}}, today)
	})

	t.Run("TopActivitiesOrderAndLimit", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		require.NoError(t, s.AddTime(ctx, 1, "alice", "Tetris", 30, Now))
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Go", 90, Now))
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 90, Now))
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Doom", 10, Now))
		require.NoError(t, s.AddTime(ctx, 2, "bob", "Quake", 500, Now))

		for _, p := range []models.Period{models.PeriodToday, models.PeriodAll} {
			rows, err := s.TopActivities(ctx, 1, p, 3)
			require.NoError(t, err)
			assert.Equal(t, []models.ActivityTime{
				{Activity: "Chess", Seconds: 90},
				{Activity: "Go", Seconds: 90},
				{Activity: "Tetris", Seconds: 30},
			}, rows, p)
		}
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		_, err := s.TopActivities(ctx, 1, models.Period("year"), 10)
		assert.True(t, errors.Is(err, models.ErrInvalidPeriod))

		_, err = s.Leaderboard(ctx, []int64{1}, "", models.Period(""), 10)
		assert.True(t, errors.Is(err, models.ErrInvalidPeriod))

		_, err = s.TopActivities(ctx, 1, models.PeriodWeek, 0)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("LeaderboardEmptyRoster", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 30, Now))

		rows, err := s.Leaderboard(ctx, nil, "", models.PeriodAll, 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Leaderboard", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 100, Now))
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Go", 50, Now))
		require.NoError(t, s.AddTime(ctx, 2, "bob", "Chess", 300, Now.AddDate(0, 0, -10)))
		require.NoError(t, s.AddTime(ctx, 3, "carol", "Chess", 150, Now))
		require.NoError(t, s.AddTime(ctx, 4, "dave", "Chess", 999, Now))
		require.NoError(t, s.AddTime(ctx, 5, "erin", "Go", 150, Now))

		roster := []int64{1, 2, 3, 5, 6}

		week, err := s.Leaderboard(ctx, roster, "", models.PeriodWeek, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.LeaderboardEntry{
			{UserID: 1, DisplayName: "alice", Seconds: 150},
			{UserID: 3, DisplayName: "carol", Seconds: 150},
			{UserID: 5, DisplayName: "erin", Seconds: 150},
		}, week)

		all, err := s.Leaderboard(ctx, roster, "", models.PeriodAll, 2)
		require.NoError(t, err)
		assert.Equal(t, []models.LeaderboardEntry{
			{UserID: 2, DisplayName: "bob", Seconds: 300},
			{UserID: 1, DisplayName: "alice", Seconds: 150},
		}, all)

		chess, err := s.Leaderboard(ctx, roster, "Chess", models.PeriodMonth, 10)
		require.NoError(t, err)
		assert.Equal(t, []models.LeaderboardEntry{
			{UserID: 2, DisplayName: "bob", Seconds: 300},
			{UserID: 3, DisplayName: "carol", Seconds: 150},
			{UserID: 1, DisplayName: "alice", Seconds: 100},
		}, chess)

		for _, rows := range [][]models.LeaderboardEntry{week, all, chess} {
			for i, e := range rows {
				assert.NotEqual(t, int64(4), e.UserID, "users outside the roster must not appear")
				if i > 0 {
					assert.GreaterOrEqual(t, rows[i-1].Seconds, e.Seconds)
				}
			}
		}
	})

	t.Run("DisplayNameOverwritten", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()

		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 10, Now))
		require.NoError(t, s.AddTime(ctx, 1, "alice2", "Go", 10, Now))

		name, err := s.DisplayName(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "alice2", name)

		rows, err := s.Leaderboard(ctx, []int64{1}, "", models.PeriodToday, 5)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "alice2", rows[0].DisplayName)
		assert.Equal(t, int64(20), rows[0].Seconds)
	})

	t.Run("LeaderboardDuplicateIDs", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 100, Now))
		require.NoError(t, s.AddTime(ctx, 2, "bob", "Chess", 40, Now))

		for _, period := range []models.Period{models.PeriodAll, models.PeriodWeek} {
			rows, err := s.Leaderboard(ctx, []int64{1, 2, 1, 1}, "", period, 10)
			require.NoError(t, err)
			assert.Equal(t, []models.LeaderboardEntry{
				{UserID: 1, DisplayName: "alice", Seconds: 100},
				{UserID: 2, DisplayName: "bob", Seconds: 40},
			}, rows, "period %s", period)
		}
	})

	t.Run("EmptyNameKeepsStored", func(t *testing.T) {
		s, _ := setup(t)
		ctx := context.Background()
		require.NoError(t, s.AddTime(ctx, 1, "alice", "Chess", 10, Now))
		require.NoError(t, s.AddTime(ctx, 1, "", "Chess", 20, Now))

		name, err := s.DisplayName(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "alice", name)

		rows, err := s.Leaderboard(ctx, []int64{1}, "", models.PeriodAll, 5)
		require.NoError(t, err)
		assert.Equal(t, []models.LeaderboardEntry{{UserID: 1, DisplayName: "alice", Seconds: 30}}, rows)

		require.NoError(t, s.AddTime(ctx, 2, "", "Go", 5, Now))
		_, err = s.DisplayName(ctx, 2)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}
