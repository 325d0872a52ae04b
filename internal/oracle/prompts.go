package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/model"
)

const recommendTemplate = `Today is %s. Use Google Search to find %d REAL sports betting opportunities for events taking place today or tomorrow.
The bettor's current bankroll is %s.

Be precise about the market of every pick:
1. NBA: prefer player props, e.g. "LeBron James over 24.5 points" or "Anthony Davis over 10.5 rebounds", and set "player".
2. Football (soccer): always state whether the market is CORNERS, CARDS, GOALS or MATCH RESULT in "type".

Reply with a JSON array only, no commentary. Each element must have:
"id" (string), "event" (string), "category" (string), "player" (string or null),
"eventDateTime" (string), "odd" (decimal odds, number), "implicitProbability" (number 0-1),
"estimatedProbability" (number 0-1), "type" (string), "confidence" ("LOW", "MEDIUM" or "HIGH"),
"reasoning" (string).`

const auditTemplate = `Use Google Search to check the real outcome of these bets:
%s

Reply with a JSON array only, no commentary. Each element must be {"id": <the original id>, "result": "WIN" | "LOSS" | "VOID" | "PENDING"}.
Use PENDING when the event has not finished or the outcome cannot be confirmed.`

func recommendPrompt(now time.Time, count int, bankroll decimal.Decimal) string {
	return fmt.Sprintf(recommendTemplate, now.Format("2006-01-02"), count, bankroll.StringFixed(2))
}

type auditItem struct {
	ID   string `json:"id"`
	Info string `json:"info"`
}

func auditPrompt(bets []model.Bet) (string, error) {
	items := make([]auditItem, 0, len(bets))
	for _, b := range bets {
		market := b.Type
		if b.Player != "" {
			market = b.Player + " " + b.Type
		}
		items = append(items, auditItem{
			ID:   b.ID,
			Info: strings.TrimSpace(fmt.Sprintf("%s - market: %s", b.Event, market)),
		})
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode audit prompt: %w", err)
	}
	return fmt.Sprintf(auditTemplate, data), nil
}
