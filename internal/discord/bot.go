package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"playtime/internal/events"
	"playtime/internal/query"
)

// eventTimeout bounds the store work done for one gateway event.
const eventTimeout = 10 * time.Second

// Bot represents the Discord bot
type Bot struct {
	session  *discordgo.Session
	handler  *events.Handler
	replies  *replier
	clock    quartz.Clock
	types    map[discordgo.ActivityType]bool
	presence *presenceState
	logger   zerolog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New creates a new Discord bot
func New(token string, activityTypes []string, handler *events.Handler, engine *query.Engine, clock quartz.Clock, logger zerolog.Logger) (*Bot, error) {
	types, err := ParseActivityTypes(activityTypes)
	if err != nil {
		return nil, err
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	logger = logger.With().Str("component", "discord").Logger()
	bot := &Bot{
		session:  session,
		handler:  handler,
		replies:  newReplier(engine, logger),
		clock:    clock,
		types:    types,
		presence: newPresenceState(),
		logger:   logger,
		ctx:      context.Background(),
	}

	// Add event handlers
	session.AddHandler(bot.ready)
	session.AddHandler(bot.guildCreate)
	session.AddHandler(bot.presenceUpdate)
	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.interactionCreate)

	return bot, nil
}

// Start opens the gateway connection. Event handlers derive their contexts
// from ctx.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.logger.Info().Msg("Bot is running")
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	b.mu.Lock()
	parent := b.ctx
	b.mu.Unlock()
	return context.WithTimeout(parent, eventTimeout)
}

// ready registers the slash commands once the application id is known.
func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().
		Str("user", r.User.Username).
		Str("user_id", r.User.ID).
		Int("guilds", len(r.Guilds)).
		Msg("Logged in")

	if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", slashCommands); err != nil {
		b.logger.Error().Err(err).Msg("Slash command sync failed")
		return
	}
	b.logger.Info().Int("commands", len(slashCommands)).Msg("Slash commands synced")
}
