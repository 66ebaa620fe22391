package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0m"},
		{-5, "0m"},
		{45, "45s"},
		{60, "1m"},
		{190, "3m"},
		{3600, "1h"},
		{3900, "1h 5m"},
		{3605, "1h"},
		{90061, "25h 1m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds), "seconds=%d", tt.seconds)
	}
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "2m", FormatElapsed(2*time.Minute+999*time.Millisecond))
}

func TestMentions(t *testing.T) {
	assert.Equal(t, "<@42>", FormatUserMention(42))

	id, ok := ExtractUserIDFromMention("<@!123456789012345678>")
	assert.True(t, ok)
	assert.Equal(t, int64(123456789012345678), id)

	id, ok = ExtractUserIDFromMention("<@42>")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"42", "<@abc>", "<@>", "<#42>", "@42"} {
		_, ok := ExtractUserIDFromMention(bad)
		assert.False(t, ok, bad)
	}
}

func TestFormatLeaderboardEntry(t *testing.T) {
	assert.Equal(t, "🥇 **alice** — 1h", FormatLeaderboardEntry(1, "alice", "1h"))
	assert.Equal(t, "🥉 **carol** — 5m", FormatLeaderboardEntry(3, "carol", "5m"))
	assert.Equal(t, "` 4.` **dave** — 45s", FormatLeaderboardEntry(4, "dave", "45s"))
	assert.Equal(t, "`12.` **erin** — 0m", FormatLeaderboardEntry(12, "erin", "0m"))
}

func TestFormatActivityEntry(t *testing.T) {
	assert.Equal(t, "` 1.` **Chess** — 3m", FormatActivityEntry(1, "Chess", "3m"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "héé...", TruncateString("hééééééé", 6))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}
