package bot

import (
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/pkg/metrics"
)

// WhitelistMiddleware drops updates from users outside the whitelist.
// An empty whitelist allows everyone.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsUserAllowed(sender.ID) {
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring update from non-whitelisted user")
				return nil
			}

			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming messages.
// Command arguments are not logged since /register and /login carry passwords.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("command", commandName(c)).
				Msg("Received update")

			return next(c)
		}
	}
}

// MetricsMiddleware counts handled updates per command.
func MetricsMiddleware(m *metrics.Metrics) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			m.Command(commandName(c))
			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("command", commandName(c)).
						Msg("Recovered from panic in handler")
					err = c.Send("❌ Internal error, please try again later.")
				}
			}()
			return next(c)
		}
	}
}

// commandName returns the command of an update without arguments or bot
// mention, "callback" for button presses and "text" for anything else.
func commandName(c tele.Context) string {
	if c.Callback() != nil {
		return "callback"
	}
	fields := strings.Fields(c.Text())
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "text"
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	cmd = strings.ToLower(cmd)
	if !knownCommands[cmd] {
		return "unknown"
	}
	return cmd
}
