package discord

import (
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"playtime/internal/models"
	"playtime/pkg/utils"
)

const commandPrefix = "!"

var periodChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "today", Value: string(models.PeriodToday)},
	{Name: "week (7d)", Value: string(models.PeriodWeek)},
	{Name: "month (30d)", Value: string(models.PeriodMonth)},
	{Name: "all time", Value: string(models.PeriodAll)},
}

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "playtime",
		Description: "Show your playtime. Optionally choose period and activity.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "period",
				Description: "Time window",
				Choices:     periodChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "activity",
				Description: "Filter by exact activity name (e.g., a specific game)",
			},
		},
	},
	{
		Name:        "leaderboard",
		Description: "Server leaderboard by total playtime.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "period",
				Description: "Time window",
				Choices:     periodChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "activity",
				Description: "Optional specific activity (exact name)",
			},
		},
	},
	{
		Name:        "nowplaying",
		Description: "Show what I'm currently tracking for you.",
	},
}

// interactionCreate answers slash commands.
func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	opts := make(map[string]string, len(data.Options))
	for _, o := range data.Options {
		if o.Type == discordgo.ApplicationCommandOptionString {
			opts[o.Name] = o.StringValue()
		}
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	userID, ok := parseSnowflake(user.ID)
	if !ok {
		return
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	var content string
	ephemeral := false
	switch data.Name {
	case "playtime":
		content = b.replies.playtime(ctx, userID, opts["period"], opts["activity"])
	case "leaderboard":
		if i.GuildID == "" {
			content = "This command can only be used in a server."
			ephemeral = true
			break
		}
		content = b.replies.leaderboard(ctx, b.roster(s, i.GuildID), opts["period"], opts["activity"])
	case "nowplaying":
		content = b.replies.nowPlaying(userID)
	default:
		return
	}

	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}
	if ephemeral {
		resp.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		b.logger.Error().Err(err).Str("command", data.Name).Msg("Failed to respond to interaction")
	}
}

// messageCreate handles the prefix commands
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	name, args, ok := parseCommand(m.Content)
	if !ok {
		return
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	var content string
	switch name {
	case "playtime":
		target, period := parsePlaytimeArgs(args)
		if target == 0 {
			id, ok := parseSnowflake(m.Author.ID)
			if !ok {
				return
			}
			target = id
		}
		content = b.replies.playtime(ctx, target, period, "")
	case "leaderboard":
		if m.GuildID == "" {
			content = "This command can only be used in a server."
			break
		}
		period, activity := parseLeaderboardArgs(args)
		content = b.replies.leaderboard(ctx, b.roster(s, m.GuildID), period, activity)
	case "nowplaying":
		id, ok := parseSnowflake(m.Author.ID)
		if !ok {
			return
		}
		content = b.replies.nowPlaying(id)
	default:
		return
	}

	if _, err := s.ChannelMessageSend(m.ChannelID, content); err != nil {
		b.logger.Error().Err(err).Str("command", name).Msg("Failed to send reply")
	}
}

// roster returns the ids of the guild's non-bot members known to state.
func (b *Bot) roster(s *discordgo.Session, guildID string) []int64 {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		b.logger.Warn().Err(err).Str("guild_id", guildID).Msg("Guild not in state")
		return nil
	}

	s.State.RLock()
	defer s.State.RUnlock()

	ids := make([]int64, 0, len(guild.Members))
	for _, member := range guild.Members {
		if member.User == nil || member.User.Bot {
			continue
		}
		if id, ok := parseSnowflake(member.User.ID); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// parseCommand splits "!name arg..." into its lower-cased name and fields.
func parseCommand(content string) (string, []string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, commandPrefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, commandPrefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// parsePlaytimeArgs reads "[period] [@user]" in either order.
func parsePlaytimeArgs(args []string) (target int64, period string) {
	for _, arg := range args {
		if utils.IsUserMention(arg) {
			if id, ok := utils.ExtractUserIDFromMention(arg); ok && target == 0 {
				target = id
			}
			continue
		}
		if period == "" {
			period = arg
		}
	}
	return target, period
}

// parseLeaderboardArgs reads "[period] [activity...]". A first word that is
// not a period starts the activity name.
func parseLeaderboardArgs(args []string) (period, activity string) {
	if len(args) == 0 {
		return "", ""
	}
	if _, err := models.ParsePeriod(args[0]); err == nil {
		return args[0], strings.Join(args[1:], " ")
	}
	return "", strings.Join(args, " ")
}
