// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/handler"
	"bankroll-tracker/internal/pkg/metrics"
	"bankroll-tracker/internal/service"
)

// knownCommands bounds the command label on metrics and logs.
var knownCommands = map[string]bool{
	"/start": true, "/register": true, "/login": true, "/logout": true,
	"/balance": true, "/tips": true, "/bet": true, "/history": true,
	"/win": true, "/loss": true, "/void": true, "/delete": true,
	"/sync": true, "/strategy": true, "/setbankroll": true, "/clear": true,
}

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot     *tele.Bot
	cfg     *config.Config
	metrics *metrics.Metrics

	// Handlers
	accountHandler *handler.AccountHandler
	betHandler     *handler.BetHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	TrackerService *service.TrackerService
	Metrics        *metrics.Metrics
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:     teleBot,
		cfg:     deps.Config,
		metrics: deps.Metrics,
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService, deps.TrackerService)
	b.betHandler = handler.NewBetHandler(deps.AccountService, deps.TrackerService, deps.Config.Bot.HistorySize)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(MetricsMiddleware(b.metrics))
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/register", b.accountHandler.HandleRegister)
	b.bot.Handle("/login", b.accountHandler.HandleLogin)
	b.bot.Handle("/logout", b.accountHandler.HandleLogout)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)

	// Bet handlers
	b.bot.Handle("/tips", b.betHandler.HandleTips)
	b.bot.Handle("/bet", b.betHandler.HandleBet)
	b.bot.Handle("/history", b.betHandler.HandleHistory)
	b.bot.Handle("/win", b.betHandler.HandleWin)
	b.bot.Handle("/loss", b.betHandler.HandleLoss)
	b.bot.Handle("/void", b.betHandler.HandleVoid)
	b.bot.Handle("/delete", b.betHandler.HandleDelete)
	b.bot.Handle("/sync", b.betHandler.HandleSync)

	// Settings
	b.bot.Handle("/strategy", b.betHandler.HandleStrategy)
	b.bot.Handle("/setbankroll", b.betHandler.HandleSetBankroll)
	b.bot.Handle("/clear", b.betHandler.HandleClear)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to appropriate handlers
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	log.Debug().Str("data", data).Msg("Callback received")

	switch {
	case strings.HasPrefix(data, "clear_"):
		return b.betHandler.HandleClearCallback(c, data)
	case strings.HasPrefix(data, "delete_"):
		return b.betHandler.HandleDeleteCallback(c, data)
	}
	return c.Respond()
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
