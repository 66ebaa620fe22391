package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"playtime/internal/config"
	"playtime/internal/models"
	"playtime/internal/query"
	"playtime/pkg/utils"
)

var (
	reportPeriod   string
	reportLimit    int
	reportActivity string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Read playtime from the store without connecting to Discord",
}

var reportTopCmd = &cobra.Command{
	Use:     "top USER_ID",
	Short:   "Show a user's top activities",
	Example: `  playtime-bot report top 123456789012345678 --period month`,
	Args:    cobra.ExactArgs(1),
	RunE:    runReportTop,
}

var reportLeaderboardCmd = &cobra.Command{
	Use:     "leaderboard USER_ID...",
	Short:   "Rank the given users by playtime",
	Example: `  playtime-bot report leaderboard 1111 2222 3333 --period all --activity Chess`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runReportLeaderboard,
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportPeriod, "period", string(query.DefaultPeriod), "Window: today, week, month or all")
	reportCmd.PersistentFlags().IntVar(&reportLimit, "limit", 10, "Maximum rows to show")
	reportLeaderboardCmd.Flags().StringVar(&reportActivity, "activity", "", "Only count this activity (exact name)")

	reportCmd.AddCommand(reportTopCmd, reportLeaderboardCmd)
	rootCmd.AddCommand(reportCmd)
}

func openReportEngine() (*query.Engine, func(), error) {
	cfg, err := config.LoadOffline(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.Nop()
	clock := quartz.NewReal()
	store, err := openStore(cfg, setupCalendar(cfg, clock, logger), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}
	return query.New(store, nil, clock), func() { _ = store.Close() }, nil
}

func parseUserIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	seen := make(map[int64]bool, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", arg)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func runReportTop(cmd *cobra.Command, args []string) error {
	ids, err := parseUserIDs(args)
	if err != nil {
		return err
	}

	engine, closeStore, err := openReportEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := engine.TopActivities(cmd.Context(), ids[0], reportPeriod, reportLimit)
	if err != nil {
		return err
	}
	writeActivities(cmd.OutOrStdout(), rows)
	return nil
}

func runReportLeaderboard(cmd *cobra.Command, args []string) error {
	ids, err := parseUserIDs(args)
	if err != nil {
		return err
	}

	engine, closeStore, err := openReportEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := engine.Leaderboard(cmd.Context(), ids, reportActivity, reportPeriod, reportLimit)
	if err != nil {
		return err
	}
	writeLeaderboard(cmd.OutOrStdout(), rows)
	return nil
}

func writeActivities(w io.Writer, rows []models.ActivityTime) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No playtime recorded.")
		return
	}
	for i, r := range rows {
		fmt.Fprintf(w, "%2d. %-30s %10s\n", i+1, utils.TruncateString(r.Activity, 30), utils.FormatDuration(r.Seconds))
	}
}

func writeLeaderboard(w io.Writer, rows []models.LeaderboardEntry) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No data yet.")
		return
	}
	for i, r := range rows {
		name := r.DisplayName
		if name == "" {
			name = strconv.FormatInt(r.UserID, 10)
		}
		fmt.Fprintf(w, "%2d. %-30s %10s\n", i+1, utils.TruncateString(name, 30), utils.FormatDuration(r.Seconds))
	}
}
