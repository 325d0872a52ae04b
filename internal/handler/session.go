// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"bankroll-tracker/internal/ledger"
	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/pkg/lock"
	"bankroll-tracker/internal/service"
)

// Bet lookup errors.
var (
	errBetNotFound  = errors.New("bet not found")
	errBetAmbiguous = errors.New("bet id prefix is ambiguous")
)

// DeviceKey is the session key for a Telegram account.
func DeviceKey(telegramID int64) string {
	return "tg:" + strconv.FormatInt(telegramID, 10)
}

// currentUser resolves the account logged in from the sender's Telegram account.
func currentUser(ctx context.Context, c tele.Context, accounts *service.AccountService) (*model.User, error) {
	sender := c.Sender()
	if sender == nil {
		return nil, service.ErrNoSession
	}
	return accounts.Current(ctx, DeviceKey(sender.ID))
}

// errorMessage turns a service error into a user-facing reply.
func errorMessage(err error) string {
	var ve *service.ValidationError
	switch {
	case errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrUserNotFound):
		return "🔒 You are not logged in. Use /register or /login first."
	case errors.Is(err, service.ErrEmailTaken):
		return "❌ This email is already registered. Use /login instead."
	case errors.Is(err, service.ErrInvalidCredentials):
		return "❌ Invalid email or password."
	case errors.As(err, &ve):
		return "❌ " + ve.Error()
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "❌ Insufficient bankroll for this stake."
	case errors.Is(err, ledger.ErrUnknownStrategy):
		return "❌ Your strategy is not configured. Pick one with /strategy."
	case errors.Is(err, ledger.ErrInvalidRecommendation):
		return "❌ This pick has invalid odds and cannot be placed."
	case errors.Is(err, lock.ErrLockTimeout):
		return "⏳ Another operation on your account is in progress, try again."
	case errors.Is(err, errBetNotFound):
		return "❌ No bet matches that id. See /history."
	case errors.Is(err, service.ErrHistoryChanged):
		return "⚠️ Your bets changed since this prompt, nothing was erased. Send /clear again."
	case errors.Is(err, errBetAmbiguous):
		return "❌ That id matches more than one bet, type more characters."
	}
	log.Error().Err(err).Msg("Handler failed")
	return "❌ Something went wrong, please try again later."
}

// findBet resolves a full bet id or a unique prefix of one.
func findBet(u *model.User, ref string) (model.Bet, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Bet{}, errBetNotFound
	}
	if b, ok := ledger.FindBet(u, ref); ok {
		return b, nil
	}

	var match model.Bet
	n := 0
	for _, b := range u.Bets {
		if strings.HasPrefix(b.ID, ref) {
			match = b
			n++
		}
	}
	switch n {
	case 0:
		return model.Bet{}, errBetNotFound
	case 1:
		return match, nil
	default:
		return model.Bet{}, errBetAmbiguous
	}
}

// deleteSecret removes a message that carried a password. Failures are only
// logged; bots cannot delete messages in every chat type.
func deleteSecret(c tele.Context) {
	if c.Message() == nil {
		return
	}
	if err := c.Delete(); err != nil {
		log.Warn().Err(err).Msg("Failed to delete message with credentials")
	}
}
