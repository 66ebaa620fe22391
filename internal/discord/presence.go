package discord

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"playtime/internal/models"
)

var activityTypesByName = map[string]discordgo.ActivityType{
	"playing":   discordgo.ActivityTypeGame,
	"streaming": discordgo.ActivityTypeStreaming,
	"listening": discordgo.ActivityTypeListening,
	"watching":  discordgo.ActivityTypeWatching,
	"custom":    discordgo.ActivityTypeCustom,
	"competing": discordgo.ActivityTypeCompeting,
}

// ParseActivityTypes maps configured type names to discordgo activity types.
func ParseActivityTypes(names []string) (map[discordgo.ActivityType]bool, error) {
	types := make(map[discordgo.ActivityType]bool, len(names))
	for _, name := range names {
		t, ok := activityTypesByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown activity type %q", name)
		}
		types[t] = true
	}
	if len(types) == 0 {
		types[discordgo.ActivityTypeGame] = true
	}
	return types, nil
}

// TrackedActivity returns the name of the first activity whose type is
// tracked, or "" if there is none.
func TrackedActivity(activities []*discordgo.Activity, types map[discordgo.ActivityType]bool) string {
	for _, act := range activities {
		if act == nil || !types[act.Type] {
			continue
		}
		if name := strings.TrimSpace(act.Name); name != "" {
			return name
		}
	}
	return ""
}

// presenceState remembers the last tracked activity per user. Discord only
// reports the new presence, so the previous one has to be kept here.
type presenceState struct {
	mu   sync.Mutex
	last map[int64]string
}

func newPresenceState() *presenceState {
	return &presenceState{last: make(map[int64]string)}
}

// observe records current as the user's tracked activity and returns the
// transition from the previous one.
func (p *presenceState) observe(userID int64, displayName, current string, at time.Time) models.Transition {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous := p.last[userID]
	if current == "" {
		delete(p.last, userID)
	} else {
		p.last[userID] = current
	}

	return models.Transition{
		UserID:      userID,
		DisplayName: displayName,
		Previous:    previous,
		Current:     current,
		At:          at,
	}
}

// tracking reports whether an activity is remembered for the user.
func (p *presenceState) tracking(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.last[userID]
	return ok
}

func parseSnowflake(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// displayName picks the best label for a user: the guild nickname or global
// name from state, then whatever the event carried.
func displayName(s *discordgo.Session, guildID string, user *discordgo.User) string {
	if user == nil {
		return ""
	}
	if s != nil && s.State != nil && guildID != "" {
		if member, err := s.State.Member(guildID, user.ID); err == nil && member.User != nil {
			if name := member.DisplayName(); name != "" {
				return name
			}
		}
	}
	return user.DisplayName()
}

// presenceUpdate turns a presence change into a tracker transition.
func (b *Bot) presenceUpdate(s *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil || p.User.Bot {
		return
	}
	b.applyPresence(s, p.GuildID, p.User, p.Activities)
}

// guildCreate reconciles sessions with the guild snapshot sent on connect.
// Members already playing get a session, and sessions of members who stopped
// or went offline while the bot was away are closed.
func (b *Bot) guildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil {
		return
	}
	seen := make(map[string]bool, len(g.Presences))
	seeded := 0
	for _, p := range g.Presences {
		if p == nil || p.User == nil || p.User.Bot {
			continue
		}
		seen[p.User.ID] = true
		if TrackedActivity(p.Activities, b.types) != "" {
			seeded++
		}
		b.applyPresence(s, g.ID, p.User, p.Activities)
	}

	// Offline members are absent from Presences.
	closed := 0
	for _, m := range g.Members {
		if m == nil || m.User == nil || m.User.Bot || seen[m.User.ID] {
			continue
		}
		if userID, ok := parseSnowflake(m.User.ID); ok && b.presence.tracking(userID) {
			b.applyPresence(s, g.ID, m.User, nil)
			closed++
		}
	}
	b.logger.Info().
		Str("guild_id", g.ID).
		Int("members", len(g.Members)).
		Int("seeded", seeded).
		Int("closed", closed).
		Msg("Guild available")
}

func (b *Bot) applyPresence(s *discordgo.Session, guildID string, user *discordgo.User, activities []*discordgo.Activity) {
	userID, ok := parseSnowflake(user.ID)
	if !ok {
		return
	}

	current := TrackedActivity(activities, b.types)
	t := b.presence.observe(userID, displayName(s, guildID, user), current, b.clock.Now())
	if t.Previous == t.Current {
		return
	}

	ctx, cancel := b.eventContext()
	defer cancel()
	if err := b.handler.Handle(ctx, t); err != nil {
		b.logger.Error().Err(err).
			Int64("user_id", userID).
			Str("previous", t.Previous).
			Str("current", t.Current).
			Msg("Failed to apply presence transition")
	}
}
