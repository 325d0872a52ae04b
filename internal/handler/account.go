package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"bankroll-tracker/internal/service"
)

const (
	registerUsage = "Usage: /register <email> <password> <bankroll> [name]"
	loginUsage    = "Usage: /login <email> <password>"
)

// AccountHandler handles registration and sessions.
type AccountHandler struct {
	accountService *service.AccountService
	trackerService *service.TrackerService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, trackerService *service.TrackerService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		trackerService: trackerService,
	}
}

// HandleStart greets the user and shows the command list.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()

	greeting := "👋 Welcome to the bankroll tracker!\n\n" +
		"Register: /register <email> <password> <bankroll> [name]\n" +
		"Log in: /login <email> <password>"
	if u, err := currentUser(ctx, c, h.accountService); err == nil {
		greeting = fmt.Sprintf("👋 Welcome back, %s! Bankroll: %s", u.Username, money(u.Bankroll.Current))
	}

	return c.Reply(greeting + "\n\n" + commandHelp + "\n\n" + ResponsibleGamingNotice)
}

const commandHelp = "Commands:\n" +
	"/balance - dashboard\n" +
	"/tips - get recommendations\n" +
	"/bet <n> - place recommendation n\n" +
	"/history - recent bets\n" +
	"/win, /loss, /void <id> - settle a bet\n" +
	"/delete <id> - remove a bet\n" +
	"/sync - settle pending bets automatically\n" +
	"/strategy <name> - change risk strategy\n" +
	"/setbankroll <initial|current> <amount>\n" +
	"/clear - erase bet history\n" +
	"/logout"

// HandleRegister creates an account and logs it in on this Telegram account.
// The message is deleted since it carries the password.
func (h *AccountHandler) HandleRegister(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	defer deleteSecret(c)

	args := c.Args()
	if len(args) < 3 {
		return c.Send(registerUsage)
	}

	bankroll, err := decimal.NewFromString(args[2])
	if err != nil {
		return c.Send("❌ Bankroll must be a number.\n" + registerUsage)
	}
	name := strings.Join(args[3:], " ")
	if name == "" {
		name = sender.FirstName
	}

	u, err := h.accountService.Register(ctx, service.RegisterInput{
		Device:          DeviceKey(sender.ID),
		Username:        name,
		Email:           args[0],
		Password:        args[1],
		InitialBankroll: bankroll,
	})
	if err != nil {
		return c.Send(errorMessage(err))
	}

	return c.Send(fmt.Sprintf(
		"🎉 Account created for %s\n"+
			"💰 Bankroll: %s\n"+
			"🎯 Strategy: %s\n\n%s",
		u.Username, money(u.Bankroll.Current), u.Bankroll.Strategy, ResponsibleGamingNotice,
	))
}

// HandleLogin binds an existing account to this Telegram account.
func (h *AccountHandler) HandleLogin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	defer deleteSecret(c)

	args := c.Args()
	if len(args) != 2 {
		return c.Send(loginUsage)
	}

	u, err := h.accountService.Login(ctx, DeviceKey(sender.ID), args[0], args[1])
	if err != nil {
		return c.Send(errorMessage(err))
	}
	return c.Send(fmt.Sprintf("✅ Logged in as %s. Bankroll: %s", u.Username, money(u.Bankroll.Current)))
}

// HandleLogout ends the session.
func (h *AccountHandler) HandleLogout(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if err := h.accountService.Logout(ctx, DeviceKey(sender.ID)); err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply("👋 Logged out.")
}

// HandleBalance shows the dashboard.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	d, err := h.trackerService.Summary(ctx, u.ID)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(formatDashboard(d, h.trackerService.Strategies()))
}
