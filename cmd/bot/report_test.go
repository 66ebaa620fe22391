package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playtime/internal/calendar"
	"playtime/internal/database"
	"playtime/internal/models"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playtime.sqlite3")

	db, err := database.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	repo := database.NewRepository(db, calendar.New(quartz.NewReal(), time.UTC))
	defer func() { _ = repo.Close() }()

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.AddTime(ctx, 1, "alice", "Chess", 190, now))
	require.NoError(t, repo.AddTime(ctx, 2, "bob", "Chess", 3900, now))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		reportPeriod, reportLimit, reportActivity = string(models.PeriodWeek), 10, ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReport(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("PLAYTIME_DB", seedSQLite(t))
	t.Setenv("DISCORD_TOKEN", "")

	out, err := runRoot(t, "report", "top", "1", "--period", "today")
	require.NoError(t, err)
	assert.Contains(t, out, "Chess")
	assert.Contains(t, out, "3m")

	out, err = runRoot(t, "report", "leaderboard", "1", "2", "--period", "all")
	require.NoError(t, err)
	assert.Regexp(t, `(?s)1\. bob .*1h 5m.*2\. alice .*3m`, out)

	out, err = runRoot(t, "report", "leaderboard", "1", "--activity", "Go")
	require.NoError(t, err)
	assert.Contains(t, out, "No data yet.")

	_, err = runRoot(t, "report", "top", "1", "--period", "forever")
	assert.ErrorIs(t, err, models.ErrInvalidPeriod)

	_, err = runRoot(t, "report", "top", "alice")
	assert.Error(t, err)
}

func TestParseUserIDs(t *testing.T) {
	ids, err := parseUserIDs([]string{"1", "22"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 22}, ids)

	ids, err = parseUserIDs([]string{"22", "1", "22"})
	require.NoError(t, err)
	assert.Equal(t, []int64{22, 1}, ids)

	_, err = parseUserIDs([]string{"-3"})
	assert.Error(t, err)
}
