package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/service"
)

// Callback identifiers of the confirmation panels. Confirm buttons carry a
// payload after "|": the history version for /clear, the bet id for /delete.
const (
	CallbackClearConfirm  = "clear_confirm"
	CallbackClearCancel   = "clear_cancel"
	CallbackDeleteConfirm = "delete_confirm"
	CallbackDeleteCancel  = "delete_cancel"
)

const defaultHistorySize = 10

// BetHandler handles recommendations, bets and bankroll settings.
type BetHandler struct {
	accountService *service.AccountService
	trackerService *service.TrackerService
	historySize    int

	// last recommendations shown to each user, by user id
	tipsMu sync.Mutex
	tips   map[string][]model.Recommendation
}

// NewBetHandler creates a new BetHandler.
func NewBetHandler(accountService *service.AccountService, trackerService *service.TrackerService, historySize int) *BetHandler {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &BetHandler{
		accountService: accountService,
		trackerService: trackerService,
		historySize:    historySize,
		tips:           make(map[string][]model.Recommendation),
	}
}

func (h *BetHandler) storeTips(userID string, recs []model.Recommendation) {
	h.tipsMu.Lock()
	defer h.tipsMu.Unlock()
	h.tips[userID] = recs
}

func (h *BetHandler) tip(userID string, n int) (model.Recommendation, bool) {
	h.tipsMu.Lock()
	defer h.tipsMu.Unlock()
	recs := h.tips[userID]
	if n < 1 || n > len(recs) {
		return model.Recommendation{}, false
	}
	return recs[n-1], true
}

// HandleTips fetches fresh recommendations and replaces the stored list.
func (h *BetHandler) HandleTips(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}

	_ = c.Notify(tele.Typing)
	recs, err := h.trackerService.Recommendations(ctx, u.ID)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	h.storeTips(u.ID, recs)

	pct, _ := h.trackerService.Strategies().Percentage(u.Bankroll.Strategy)
	return c.Reply(formatRecommendations(recs, u.Bankroll.Current, pct))
}

// HandleBet places recommendation n from the last /tips.
func (h *BetHandler) HandleBet(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /bet <n>, where n is a number from /tips")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return c.Reply("❌ Pick number must be an integer.")
	}
	rec, ok := h.tip(u.ID, n)
	if !ok {
		return c.Reply("❌ No such pick. Use /tips to get recommendations first.")
	}

	after, bet, err := h.trackerService.PlaceBet(ctx, u.ID, rec)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(fmt.Sprintf("🎟 Bet placed\n%s\n💰 Bankroll: %s", formatBet(*bet), money(after.Bankroll.Current)))
}

// HandleHistory lists the most recent bets.
func (h *BetHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(formatHistory(u.Bets, h.historySize))
}

// HandleWin settles a bet as won.
func (h *BetHandler) HandleWin(c tele.Context) error {
	return h.resolve(c, model.ResultWin)
}

// HandleLoss settles a bet as lost.
func (h *BetHandler) HandleLoss(c tele.Context) error {
	return h.resolve(c, model.ResultLoss)
}

// HandleVoid settles a bet as void, refunding the stake.
func (h *BetHandler) HandleVoid(c tele.Context) error {
	return h.resolve(c, model.ResultVoid)
}

func (h *BetHandler) resolve(c tele.Context, result model.BetResult) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	args := c.Args()
	if len(args) != 1 {
		return c.Reply(fmt.Sprintf("Usage: /%s <bet id>", strings.ToLower(string(result))))
	}
	bet, err := findBet(u, args[0])
	if err != nil {
		return c.Reply(errorMessage(err))
	}

	after, changed, err := h.trackerService.ResolveBet(ctx, u.ID, bet.ID, result)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	if !changed {
		return c.Reply(fmt.Sprintf("ℹ️ Bet %s is already settled as %s.", shortID(bet.ID), bet.Result))
	}
	settled, _ := findBet(after, bet.ID)
	return c.Reply(fmt.Sprintf("%s\n💰 Bankroll: %s", formatBet(settled), money(after.Bankroll.Current)))
}

// HandleDelete asks for confirmation before removing a bet.
func (h *BetHandler) HandleDelete(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /delete <bet id>")
	}
	bet, err := findBet(u, args[0])
	if err != nil {
		return c.Reply(errorMessage(err))
	}

	prompt := fmt.Sprintf("⚠️ Delete this bet?\n%s", formatBet(bet))
	if bet.Result == model.ResultPending {
		prompt += fmt.Sprintf("\nThe stake of %s will be refunded.", money(bet.Stake))
	}
	return c.Reply(prompt, BuildDeletePanel(bet.ID))
}

// BuildDeletePanel creates the /delete confirmation buttons for betID.
func BuildDeletePanel(betID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	confirmBtn := markup.Data("🗑 Yes, delete", CallbackDeleteConfirm, betID)
	cancelBtn := markup.Data("Cancel", CallbackDeleteCancel)
	markup.Inline(markup.Row(confirmBtn, cancelBtn))
	return markup
}

// HandleDeleteCallback handles the /delete buttons. Pending stakes are
// refunded. data has the telebot prefix already removed.
func (h *BetHandler) HandleDeleteCallback(c tele.Context, data string) error {
	ctx := context.Background()

	unique, betID, _ := strings.Cut(data, "|")
	if unique != CallbackDeleteConfirm || betID == "" {
		return cancelPanel(c)
	}

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorMessage(err), ShowAlert: true})
	}
	bet, err := findBet(u, betID)
	if err != nil || bet.ID != betID {
		editPanel(c, errorMessage(errBetNotFound))
		return c.Respond()
	}

	after, changed, err := h.trackerService.DeleteBet(ctx, u.ID, bet.ID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorMessage(err), ShowAlert: true})
	}
	if !changed {
		editPanel(c, errorMessage(errBetNotFound))
		return c.Respond()
	}

	msg := fmt.Sprintf("🗑 Deleted bet %s.", shortID(bet.ID))
	if bet.Result == model.ResultPending {
		msg += fmt.Sprintf(" Refunded %s.", money(bet.Stake))
	}
	editPanel(c, fmt.Sprintf("%s\n💰 Bankroll: %s", msg, money(after.Bankroll.Current)))
	return c.Respond(&tele.CallbackResponse{Text: "Bet deleted"})
}

// HandleSync asks the oracle to settle the user's pending bets.
func (h *BetHandler) HandleSync(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}

	_ = c.Notify(tele.Typing)
	n, err := h.trackerService.SyncResults(ctx, u.ID)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	if n == 0 {
		return c.Reply("🔄 No pending bets could be settled right now.")
	}

	after, err := h.trackerService.GetUser(ctx, u.ID)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(fmt.Sprintf("🔄 Settled %d bet(s).\n💰 Bankroll: %s", n, money(after.Bankroll.Current)))
}

// HandleStrategy shows or changes the risk strategy.
func (h *BetHandler) HandleStrategy(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	args := c.Args()
	if len(args) == 0 {
		return c.Reply(formatStrategies(h.trackerService.Strategies(), u.Bankroll.Strategy))
	}

	s, ok := model.ParseStrategy(args[0])
	if !ok {
		return c.Reply(fmt.Sprintf("❌ Unknown strategy %q.\n\n%s", args[0], formatStrategies(h.trackerService.Strategies(), u.Bankroll.Strategy)))
	}
	after, err := h.trackerService.UpdateStrategy(ctx, u.ID, s)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(fmt.Sprintf("🎯 Strategy set to %s.", after.Bankroll.Strategy))
}

// HandleSetBankroll overwrites the initial or current bankroll.
func (h *BetHandler) HandleSetBankroll(c tele.Context) error {
	ctx := context.Background()
	const usage = "Usage: /setbankroll <initial|current> <amount>"

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	args := c.Args()
	if len(args) != 2 {
		return c.Reply(usage)
	}
	value, err := decimal.NewFromString(args[1])
	if err != nil {
		return c.Reply("❌ Amount must be a number.\n" + usage)
	}

	field := model.BankrollField(strings.ToLower(args[0]))
	after, err := h.trackerService.UpdateBankroll(ctx, u.ID, field, value)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(fmt.Sprintf("✅ Bankroll updated\n💰 Current: %s\n🏁 Initial: %s",
		money(after.Bankroll.Current), money(after.Bankroll.Initial)))
}

// BuildClearPanel creates the /clear confirmation buttons bound to the
// history version the prompt described.
func BuildClearPanel(version string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	confirmBtn := markup.Data("🗑 Yes, clear history", CallbackClearConfirm, version)
	cancelBtn := markup.Data("Cancel", CallbackClearCancel)
	markup.Inline(markup.Row(confirmBtn, cancelBtn))
	return markup
}

// HandleClear asks for confirmation before erasing the bet history.
func (h *BetHandler) HandleClear(c tele.Context) error {
	ctx := context.Background()

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	if len(u.Bets) == 0 {
		return c.Reply("📭 Nothing to clear.")
	}
	return c.Reply(fmt.Sprintf(
		"⚠️ Erase all %d bets? Stakes of pending bets are not refunded.", len(u.Bets)),
		BuildClearPanel(service.HistoryVersion(u.Bets)))
}

// HandleClearCallback handles the /clear buttons. A confirmation is refused
// when bets were placed or deleted after the prompt. data has the telebot
// prefix already removed.
func (h *BetHandler) HandleClearCallback(c tele.Context, data string) error {
	ctx := context.Background()

	unique, version, _ := strings.Cut(data, "|")
	if unique != CallbackClearConfirm {
		return cancelPanel(c)
	}

	u, err := currentUser(ctx, c, h.accountService)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorMessage(err), ShowAlert: true})
	}
	after, err := h.trackerService.ClearHistoryAt(ctx, u.ID, version)
	if errors.Is(err, service.ErrHistoryChanged) {
		editPanel(c, errorMessage(err))
		return c.Respond(&tele.CallbackResponse{Text: "Nothing was erased"})
	}
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorMessage(err), ShowAlert: true})
	}
	h.storeTips(u.ID, nil)

	editPanel(c, fmt.Sprintf("🧹 History cleared. Bankroll: %s", money(after.Bankroll.Current)))
	return c.Respond(&tele.CallbackResponse{Text: "History cleared"})
}

func cancelPanel(c tele.Context) error {
	editPanel(c, "Cancelled.")
	return c.Respond(&tele.CallbackResponse{Text: "Cancelled"})
}

// editPanel replaces the confirmation message, removing its buttons.
func editPanel(c tele.Context, text string) {
	if err := c.Edit(text); err != nil {
		log.Warn().Err(err).Msg("Failed to edit confirmation panel")
	}
}
