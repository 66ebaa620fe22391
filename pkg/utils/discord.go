package utils

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FormatUserMention formats a user ID as a Discord mention
func FormatUserMention(userID int64) string {
	return fmt.Sprintf("<@%d>", userID)
}

// ExtractUserIDFromMention extracts the user ID from a Discord mention.
// Nickname mentions (<@!id>) are accepted.
func ExtractUserIDFromMention(mention string) (int64, bool) {
	if !IsUserMention(mention) {
		return 0, false
	}
	// Remove <@ and >
	userID := strings.TrimPrefix(mention, "<@")
	userID = strings.TrimSuffix(userID, ">")
	userID = strings.TrimPrefix(userID, "!")

	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsUserMention checks if a string is shaped like a user mention
func IsUserMention(text string) bool {
	return strings.HasPrefix(text, "<@") && strings.HasSuffix(text, ">")
}

// FormatLeaderboardEntry formats a leaderboard entry with rank, name, and duration
func FormatLeaderboardEntry(rank int, name, duration string) string {
	var medal string
	switch rank {
	case 1:
		medal = "🥇"
	case 2:
		medal = "🥈"
	case 3:
		medal = "🥉"
	default:
		medal = fmt.Sprintf("`%2d.`", rank)
	}

	return fmt.Sprintf("%s **%s** — %s", medal, name, duration)
}

// FormatActivityEntry formats one row of a personal activity ranking.
func FormatActivityEntry(rank int, activity, duration string) string {
	return fmt.Sprintf("`%2d.` **%s** — %s", rank, activity, duration)
}

// TruncateString truncates a string to maxLen runes and adds an ellipsis if
// needed
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
