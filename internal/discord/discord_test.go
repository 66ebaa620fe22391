package discord

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playtime/internal/calendar"
	"playtime/internal/database/memory"
	"playtime/internal/events"
	"playtime/internal/models"
	"playtime/internal/query"
	"playtime/internal/tracker"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clk     *quartz.Mock
	tracker *tracker.Tracker
	store   *memory.Store
	bot     *Bot
}

func newFixture(t *testing.T, types ...string) *fixture {
	t.Helper()
	clk := quartz.NewMock(t)
	clk.Set(now).MustWait(context.Background())

	tr := tracker.New(clk)
	store := memory.New(calendar.New(clk, time.UTC))
	names, err := tracker.NewNameCache(16)
	require.NoError(t, err)

	if len(types) == 0 {
		types = []string{"playing"}
	}
	parsed, err := ParseActivityTypes(types)
	require.NoError(t, err)

	engine := query.New(store, tr, clk)
	return &fixture{
		clk:     clk,
		tracker: tr,
		store:   store,
		bot: &Bot{
			handler:  events.New(tr, store, names, zerolog.Nop()),
			replies:  newReplier(engine, zerolog.Nop()),
			clock:    clk,
			types:    parsed,
			presence: newPresenceState(),
			logger:   zerolog.Nop(),
			ctx:      context.Background(),
		},
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clk.Advance(d).MustWait(context.Background())
}

func presence(userID, username string, acts ...*discordgo.Activity) *discordgo.PresenceUpdate {
	return &discordgo.PresenceUpdate{
		GuildID: "100",
		Presence: discordgo.Presence{
			User:       &discordgo.User{ID: userID, Username: username},
			Activities: acts,
		},
	}
}

func game(name string) *discordgo.Activity {
	return &discordgo.Activity{Name: name, Type: discordgo.ActivityTypeGame}
}

func TestParseActivityTypes(t *testing.T) {
	types, err := ParseActivityTypes([]string{"Playing", "streaming"})
	require.NoError(t, err)
	assert.Equal(t, map[discordgo.ActivityType]bool{
		discordgo.ActivityTypeGame:      true,
		discordgo.ActivityTypeStreaming: true,
	}, types)

	types, err = ParseActivityTypes(nil)
	require.NoError(t, err)
	assert.True(t, types[discordgo.ActivityTypeGame])

	_, err = ParseActivityTypes([]string{"dancing"})
	assert.Error(t, err)
}

func TestTrackedActivity(t *testing.T) {
	types := map[discordgo.ActivityType]bool{discordgo.ActivityTypeGame: true}

	acts := []*discordgo.Activity{
		nil,
		{Name: "Spotify", Type: discordgo.ActivityTypeListening},
		{Name: "  ", Type: discordgo.ActivityTypeGame},
		{Name: "Chess", Type: discordgo.ActivityTypeGame},
		{Name: "Go", Type: discordgo.ActivityTypeGame},
	}
	assert.Equal(t, "Chess", TrackedActivity(acts, types))
	assert.Equal(t, "", TrackedActivity(acts[:2], types))
	assert.Equal(t, "", TrackedActivity(nil, types))
}

func TestPresenceState(t *testing.T) {
	p := newPresenceState()

	tr := p.observe(1, "alice", "Chess", now)
	assert.Equal(t, models.Transition{UserID: 1, DisplayName: "alice", Current: "Chess", At: now}, tr)

	tr = p.observe(1, "alice", "Chess", now)
	assert.Equal(t, tr.Previous, tr.Current)

	tr = p.observe(1, "alice", "", now)
	assert.Equal(t, "Chess", tr.Previous)
	assert.Equal(t, "", tr.Current)

	tr = p.observe(1, "alice", "Go", now)
	assert.Equal(t, "", tr.Previous)
}

func TestPresenceUpdate_TracksSessions(t *testing.T) {
	f := newFixture(t)

	f.bot.presenceUpdate(nil, presence("1", "alice", game("Chess")))
	f.advance(45 * time.Second)
	// Repeated presence with the same game is ignored.
	f.bot.presenceUpdate(nil, presence("1", "alice", game("Chess")))
	f.advance(15 * time.Second)
	f.bot.presenceUpdate(nil, presence("1", "alice", game("Go")))
	f.advance(30 * time.Second)
	f.bot.presenceUpdate(nil, presence("1", "alice"))

	rows, err := f.store.TopActivities(context.Background(), 1, models.PeriodAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.ActivityTime{
		{Activity: "Chess", Seconds: 60},
		{Activity: "Go", Seconds: 30},
	}, rows)

	name, err := f.store.DisplayName(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, 0, f.tracker.Len())
}

func TestPresenceUpdate_IgnoresUntrackedTypesAndBots(t *testing.T) {
	f := newFixture(t)

	f.bot.presenceUpdate(nil, presence("1", "alice", &discordgo.Activity{Name: "Spotify", Type: discordgo.ActivityTypeListening}))
	bot := presence("2", "robot", game("Chess"))
	bot.User.Bot = true
	f.bot.presenceUpdate(nil, bot)
	f.bot.presenceUpdate(nil, presence("not-a-number", "x", game("Chess")))

	assert.Equal(t, 0, f.tracker.Len())
}

func TestPresenceUpdate_ConfiguredTypes(t *testing.T) {
	f := newFixture(t, "listening")

	f.bot.presenceUpdate(nil, presence("1", "alice", game("Chess"), &discordgo.Activity{Name: "Spotify", Type: discordgo.ActivityTypeListening}))

	sessions := f.tracker.ActiveSessionsFor(1)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Spotify", sessions[0].Activity)
}

func TestGuildCreate_SeedsSessions(t *testing.T) {
	f := newFixture(t)

	f.bot.guildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID: "100",
		Presences: []*discordgo.Presence{
			{User: &discordgo.User{ID: "1", Username: "alice"}, Activities: []*discordgo.Activity{game("Chess")}},
			{User: &discordgo.User{ID: "2", Username: "bob"}},
			{User: &discordgo.User{ID: "3", Username: "robot", Bot: true}, Activities: []*discordgo.Activity{game("Chess")}},
		},
	}})

	assert.Equal(t, []models.SessionKey{{UserID: 1, Activity: "Chess"}}, f.tracker.Sessions())

	// A later update for the seeded game is not a new session.
	f.advance(20 * time.Second)
	f.bot.presenceUpdate(nil, presence("1", "alice", game("Chess")))
	sessions := f.tracker.ActiveSessionsFor(1)
	require.Len(t, sessions, 1)
	assert.Equal(t, now, sessions[0].StartedAt)
}

func TestGuildCreate_ClosesStaleSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.presenceUpdate(nil, presence("1", "alice", game("Chess")))
	f.bot.presenceUpdate(nil, presence("2", "bob", game("Go")))
	f.bot.presenceUpdate(nil, presence("4", "dave", game("Tetris")))
	f.advance(40 * time.Second)

	// After a reconnect alice is online without a game, bob is offline and
	// dave belongs to another guild.
	f.bot.guildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID: "100",
		Members: []*discordgo.Member{
			{User: &discordgo.User{ID: "1", Username: "alice"}},
			{User: &discordgo.User{ID: "2", Username: "bob"}},
			{User: &discordgo.User{ID: "3", Username: "carol"}},
		},
		Presences: []*discordgo.Presence{
			{User: &discordgo.User{ID: "1", Username: "alice"}},
		},
	}})

	assert.Equal(t, []models.SessionKey{{UserID: 4, Activity: "Tetris"}}, f.tracker.Sessions())

	alice, err := f.store.TopActivities(ctx, 1, models.PeriodAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 40}}, alice)

	bob, err := f.store.TopActivities(ctx, 2, models.PeriodAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.ActivityTime{{Activity: "Go", Seconds: 40}}, bob)

	// Nothing left to close on a second snapshot.
	f.advance(10 * time.Second)
	f.bot.guildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID:      "100",
		Members: []*discordgo.Member{{User: &discordgo.User{ID: "2", Username: "bob"}}},
	}})
	bob, err = f.store.TopActivities(ctx, 2, models.PeriodAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.ActivityTime{{Activity: "Go", Seconds: 40}}, bob)
}

func TestParseCommand(t *testing.T) {
	name, args, ok := parseCommand("  !Playtime week <@42> ")
	require.True(t, ok)
	assert.Equal(t, "playtime", name)
	assert.Equal(t, []string{"week", "<@42>"}, args)

	_, _, ok = parseCommand("playtime")
	assert.False(t, ok)
	_, _, ok = parseCommand("!")
	assert.False(t, ok)
}

func TestParsePlaytimeArgs(t *testing.T) {
	target, period := parsePlaytimeArgs([]string{"<@!42>", "month"})
	assert.Equal(t, int64(42), target)
	assert.Equal(t, "month", period)

	target, period = parsePlaytimeArgs(nil)
	assert.Zero(t, target)
	assert.Empty(t, period)
}

func TestParseLeaderboardArgs(t *testing.T) {
	period, activity := parseLeaderboardArgs([]string{"today", "Rocket", "League"})
	assert.Equal(t, "today", period)
	assert.Equal(t, "Rocket League", activity)

	period, activity = parseLeaderboardArgs([]string{"Chess"})
	assert.Empty(t, period)
	assert.Equal(t, "Chess", activity)
}

func TestReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.bot.replies

	assert.Equal(t, "**Playtime for <@1> (week)**\nNo playtime recorded yet. Start a game while I'm online!",
		r.playtime(ctx, 1, "", ""))

	require.NoError(t, f.store.AddTime(ctx, 1, "alice", "Chess", 190, now))
	require.NoError(t, f.store.AddTime(ctx, 2, "bob", "Chess", 3900, now))
	require.NoError(t, f.store.AddTime(ctx, 2, "bob", "Go", 45, now))

	assert.Equal(t, "**Playtime for <@2> (today)**\n` 1.` **Chess** — 1h 5m\n` 2.` **Go** — 45s",
		r.playtime(ctx, 2, "today", ""))
	assert.Equal(t, "**<@1>** — 3m in **Chess** (all time).", r.playtime(ctx, 1, "all", "chess"))
	assert.Equal(t, "Unknown period. Use one of: today, week, month, all.", r.playtime(ctx, 1, "year", ""))

	assert.Equal(t, "**Leaderboard (week)**\n🥇 **bob** — 1h 5m\n🥈 **alice** — 3m",
		r.leaderboard(ctx, []int64{1, 2, 3}, "", ""))
	assert.Equal(t, "**Leaderboard (today • Go)**\n🥇 **bob** — 45s",
		r.leaderboard(ctx, []int64{1, 2}, "today", "Go"))
	assert.Equal(t, "**Leaderboard (month)**\nNo data yet.", r.leaderboard(ctx, nil, "month", ""))

	assert.Equal(t, "Not tracking anything for you right now.", r.nowPlaying(1))
	f.tracker.Start(1, "Chess")
	f.advance(125 * time.Second)
	assert.Equal(t, "Currently tracking:\n• **Chess** — 2m so far", r.nowPlaying(1))
}

func TestRenderLeaderboard_FallsBackToMention(t *testing.T) {
	out := renderLeaderboard(models.PeriodAll, "", []models.LeaderboardEntry{{UserID: 7, Seconds: 60}})
	assert.Equal(t, "**Leaderboard (all time)**\n🥇 **<@7>** — 1m", out)
}
