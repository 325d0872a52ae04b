package handler

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/ledger"
	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/service"
)

const divider = "━━━━━━━━━━━━━━━"

// ResponsibleGamingNotice is shown on /start and after registration.
const ResponsibleGamingNotice = "⚠️ Responsible gaming\n" +
	"Betting involves risk of loss. Only stake money you can afford to lose.\n" +
	"Recommendations are estimates, not guarantees. If betting stops being fun, take a break."

// shortIDLen is how many id characters are shown in listings.
const shortIDLen = 8

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + money(d)
	}
	return money(d)
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func resultIcon(r model.BetResult) string {
	switch r {
	case model.ResultWin:
		return "✅"
	case model.ResultLoss:
		return "❌"
	case model.ResultVoid:
		return "↩️"
	default:
		return "⏳"
	}
}

// betTitle renders "event - market: player type" the way audits describe bets.
func betTitle(b model.Bet) string {
	var sb strings.Builder
	sb.WriteString(b.Event)
	if b.Category != "" {
		sb.WriteString(" - " + b.Category)
	}
	sb.WriteString(": ")
	if b.Player != "" {
		sb.WriteString(b.Player + " ")
	}
	sb.WriteString(b.Type)
	return sb.String()
}

func formatBet(b model.Bet) string {
	line := fmt.Sprintf("%s [%s] %s\n    stake %s @ %s",
		resultIcon(b.Result), shortID(b.ID), betTitle(b), money(b.Stake), b.Odd.String())
	if b.Profit != nil {
		line += " → " + signed(*b.Profit)
	}
	return line
}

func formatHistory(bets []model.Bet, limit int) string {
	if len(bets) == 0 {
		return "📭 No bets yet. Use /tips to get recommendations."
	}
	shown := bets
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 Last %d of %d bets\n%s\n", len(shown), len(bets), divider)
	for _, b := range shown {
		sb.WriteString(formatBet(b))
		sb.WriteString("\n")
	}
	sb.WriteString(divider)
	return sb.String()
}

// drawdown returns the peak cumulative profit and the largest fall from a peak.
func drawdown(curve []ledger.CurvePoint) (peak, maxFall decimal.Decimal) {
	for _, p := range curve {
		if p.Profit.GreaterThan(peak) {
			peak = p.Profit
		}
		if fall := peak.Sub(p.Profit); fall.GreaterThan(maxFall) {
			maxFall = fall
		}
	}
	return peak, maxFall
}

func formatDashboard(d *service.Dashboard, strategies ledger.StrategyTable) string {
	u := d.User
	s := d.Summary

	stakePct := "?"
	if pct, ok := strategies.Percentage(u.Bankroll.Strategy); ok {
		stakePct = percent(pct.Mul(decimal.NewFromInt(100)))
	}
	growth := u.Bankroll.Current.Sub(u.Bankroll.Initial)
	peak, fall := drawdown(d.Curve)

	return fmt.Sprintf(
		"📊 %s\n"+
			"%s\n"+
			"💰 Bankroll: %s (%s)\n"+
			"🏁 Initial: %s\n"+
			"🎯 Strategy: %s (%s per bet)\n"+
			"%s\n"+
			"🧾 Bets: %d (%d pending)\n"+
			"🏆 W/L/V: %d/%d/%d\n"+
			"📈 Win rate: %s\n"+
			"💵 Profit: %s\n"+
			"🔁 ROI: %s\n"+
			"⛰ Peak profit: %s\n"+
			"📉 Max drawdown: %s\n"+
			"%s",
		u.Username, divider,
		money(u.Bankroll.Current), signed(growth),
		money(u.Bankroll.Initial),
		u.Bankroll.Strategy, stakePct,
		divider,
		s.Total, s.Pending,
		s.Wins, s.Losses, s.Voids,
		percent(s.WinRate),
		signed(s.TotalProfit),
		percent(s.ROI),
		signed(peak),
		money(fall),
		divider,
	)
}

func formatRecommendations(recs []model.Recommendation, bankroll decimal.Decimal, pct decimal.Decimal) string {
	if len(recs) == 0 {
		return "🤷 No recommendations available right now. Try again later."
	}
	stake := bankroll.Mul(pct).Round(2)

	var sb strings.Builder
	fmt.Fprintf(&sb, "💡 Picks (stake %s each)\n%s\n", money(stake), divider)
	for i, r := range recs {
		fmt.Fprintf(&sb, "%d. %s", i+1, r.Event)
		if r.EventDateTime != "" {
			fmt.Fprintf(&sb, " (%s)", r.EventDateTime)
		}
		sb.WriteString("\n   ")
		if r.Category != "" {
			sb.WriteString(r.Category + ": ")
		}
		if r.Player != "" {
			sb.WriteString(r.Player + " ")
		}
		fmt.Fprintf(&sb, "%s @ %s\n", r.Type, r.Odd.String())
		fmt.Fprintf(&sb, "   edge %s vs %s, confidence %s\n",
			percent(r.EstimatedProbability.Mul(decimal.NewFromInt(100))),
			percent(r.ImplicitProbability.Mul(decimal.NewFromInt(100))),
			r.Confidence)
		if r.Reasoning != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Reasoning)
		}
	}
	sb.WriteString(divider + "\nUse /bet <n> to place one.")
	return sb.String()
}

func formatStrategies(table ledger.StrategyTable, current model.RiskStrategy) string {
	var sb strings.Builder
	sb.WriteString("🎯 Strategies\n")
	for _, s := range model.Strategies() {
		pct, ok := table.Percentage(s)
		if !ok {
			continue
		}
		marker := "  "
		if s == current {
			marker = "▶"
		}
		fmt.Fprintf(&sb, "%s %s: %s of bankroll\n", marker, s, percent(pct.Mul(decimal.NewFromInt(100))))
	}
	sb.WriteString("Usage: /strategy <name>")
	return sb.String()
}
