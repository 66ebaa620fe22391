package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"playtime/internal/models"
	"playtime/internal/query"
	"playtime/pkg/utils"
)

const (
	playtimeLimit    = 10
	leaderboardLimit = 15
	maxMessageLength = 2000
)

var periodLabels = map[models.Period]string{
	models.PeriodToday: "today",
	models.PeriodWeek:  "week",
	models.PeriodMonth: "month",
	models.PeriodAll:   "all time",
}

// replier builds command replies from query results.
type replier struct {
	engine *query.Engine
	logger zerolog.Logger
}

func newReplier(engine *query.Engine, logger zerolog.Logger) *replier {
	return &replier{engine: engine, logger: logger}
}

func (r *replier) playtime(ctx context.Context, userID int64, period, activity string) string {
	p, err := query.ParsePeriod(period)
	if err != nil {
		return r.failure(err, "playtime")
	}

	if strings.TrimSpace(activity) != "" {
		row, err := r.engine.ActivityTime(ctx, userID, string(p), activity)
		if err != nil {
			return r.failure(err, "playtime")
		}
		return renderActivityTime(userID, p, row)
	}

	rows, err := r.engine.TopActivities(ctx, userID, string(p), playtimeLimit)
	if err != nil {
		return r.failure(err, "playtime")
	}
	return renderPlaytime(userID, p, rows)
}

func (r *replier) leaderboard(ctx context.Context, roster []int64, period, activity string) string {
	p, err := query.ParsePeriod(period)
	if err != nil {
		return r.failure(err, "leaderboard")
	}
	activity = strings.TrimSpace(activity)

	rows, err := r.engine.Leaderboard(ctx, roster, activity, string(p), leaderboardLimit)
	if err != nil {
		return r.failure(err, "leaderboard")
	}
	return renderLeaderboard(p, activity, rows)
}

func (r *replier) nowPlaying(userID int64) string {
	return renderNowPlaying(r.engine.NowPlaying(userID))
}

// failure turns an error into user-facing text. Invalid input is explained;
// anything else is logged and reported generically.
func (r *replier) failure(err error, command string) string {
	if errors.Is(err, models.ErrInvalidPeriod) {
		return "Unknown period. Use one of: today, week, month, all."
	}
	if errors.Is(err, models.ErrInvalidInput) {
		return "Invalid request: " + err.Error()
	}
	r.logger.Error().Err(err).Str("command", command).Msg("Query failed")
	return "Something went wrong while reading playtime. Please try again later."
}

func renderPlaytime(userID int64, p models.Period, rows []models.ActivityTime) string {
	lines := []string{fmt.Sprintf("**Playtime for %s (%s)**", utils.FormatUserMention(userID), periodLabels[p])}
	if len(rows) == 0 {
		lines = append(lines, "No playtime recorded yet. Start a game while I'm online!")
	}
	for i, row := range rows {
		lines = append(lines, utils.FormatActivityEntry(i+1, row.Activity, utils.FormatDuration(row.Seconds)))
	}
	return utils.TruncateString(strings.Join(lines, "\n"), maxMessageLength)
}

func renderActivityTime(userID int64, p models.Period, row models.ActivityTime) string {
	return fmt.Sprintf("**%s** — %s in **%s** (%s).",
		utils.FormatUserMention(userID), utils.FormatDuration(row.Seconds), row.Activity, periodLabels[p])
}

func renderLeaderboard(p models.Period, activity string, rows []models.LeaderboardEntry) string {
	header := "Leaderboard (" + periodLabels[p]
	if activity != "" {
		header += " • " + activity
	}
	header += ")"

	lines := []string{"**" + header + "**"}
	if len(rows) == 0 {
		lines = append(lines, "No data yet.")
	}
	for i, row := range rows {
		name := row.DisplayName
		if name == "" {
			name = utils.FormatUserMention(row.UserID)
		}
		lines = append(lines, utils.FormatLeaderboardEntry(i+1, name, utils.FormatDuration(row.Seconds)))
	}
	return utils.TruncateString(strings.Join(lines, "\n"), maxMessageLength)
}

func renderNowPlaying(sessions []query.NowPlaying) string {
	if len(sessions) == 0 {
		return "Not tracking anything for you right now."
	}
	lines := []string{"Currently tracking:"}
	for _, s := range sessions {
		lines = append(lines, fmt.Sprintf("• **%s** — %s so far", s.Activity, utils.FormatElapsed(s.Elapsed)))
	}
	return strings.Join(lines, "\n")
}
