package models

import (
	"cmp"
	"slices"
)

// RankActivities sorts rows by seconds descending, then activity name, drops
// zero rows and truncates to limit.
func RankActivities(rows []ActivityTime, limit int) []ActivityTime {
	rows = slices.DeleteFunc(rows, func(r ActivityTime) bool { return r.Seconds <= 0 })
	slices.SortFunc(rows, func(a, b ActivityTime) int {
		if c := cmp.Compare(b.Seconds, a.Seconds); c != 0 {
			return c
		}
		return cmp.Compare(a.Activity, b.Activity)
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// RankLeaderboard sorts rows by seconds descending, then display name, then
// user id, drops zero rows and truncates to limit.
func RankLeaderboard(rows []LeaderboardEntry, limit int) []LeaderboardEntry {
	rows = slices.DeleteFunc(rows, func(r LeaderboardEntry) bool { return r.Seconds <= 0 })
	slices.SortFunc(rows, func(a, b LeaderboardEntry) int {
		if c := cmp.Compare(b.Seconds, a.Seconds); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
