// Package model defines the data models for the bankroll tracker.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RiskStrategy selects the share of the current bankroll staked per bet.
type RiskStrategy string

// Risk strategies. The stake percentage for each lives in the ledger's strategy table.
const (
	StrategyConservative RiskStrategy = "CONSERVATIVE"
	StrategyModerate     RiskStrategy = "MODERATE"
	StrategyRisky        RiskStrategy = "RISKY"
)

// Strategies returns every known strategy, lowest risk first.
func Strategies() []RiskStrategy {
	return []RiskStrategy{StrategyConservative, StrategyModerate, StrategyRisky}
}

// ParseStrategy parses a strategy name in any letter case.
func ParseStrategy(s string) (RiskStrategy, bool) {
	candidate := RiskStrategy(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Strategies() {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}

// BetResult is the lifecycle state of a bet.
type BetResult string

// Bet results. A bet starts PENDING and moves exactly once to WIN, LOSS or VOID.
const (
	ResultPending BetResult = "PENDING"
	ResultWin     BetResult = "WIN"
	ResultLoss    BetResult = "LOSS"
	ResultVoid    BetResult = "VOID"
)

// IsFinal reports whether r is a settled outcome.
func (r BetResult) IsFinal() bool {
	return r == ResultWin || r == ResultLoss || r == ResultVoid
}

// ParseResult parses a result name in any letter case.
func ParseResult(s string) (BetResult, bool) {
	switch r := BetResult(strings.ToUpper(strings.TrimSpace(s))); r {
	case ResultPending, ResultWin, ResultLoss, ResultVoid:
		return r, true
	}
	return "", false
}

// Confidence is the oracle's self-reported confidence in a recommendation.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// BankrollField selects which bankroll figure a direct edit targets.
type BankrollField string

// Editable bankroll fields.
const (
	FieldInitial BankrollField = "initial"
	FieldCurrent BankrollField = "current"
)

// User is a tracker account. It is persisted as one document after every change.
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"passwordHash"`
	CreatedAt    time.Time    `json:"createdAt"`
	Bankroll     BankrollData `json:"bankroll"`
	Bets         []Bet        `json:"bets"` // most recent first
}

// BankrollData holds a user's capital and staking policy.
type BankrollData struct {
	Initial  decimal.Decimal `json:"initial"`
	Current  decimal.Decimal `json:"current"`
	Strategy RiskStrategy    `json:"strategy"`
}

// Bet is a single wager recorded in the ledger.
type Bet struct {
	ID        string           `json:"id"`
	Event     string           `json:"event"`
	Player    string           `json:"player,omitempty"`
	Category  string           `json:"category,omitempty"`
	Type      string           `json:"type"`
	Odd       decimal.Decimal  `json:"odd"`
	Stake     decimal.Decimal  `json:"stake"`
	Result    BetResult        `json:"result"`
	Timestamp time.Time        `json:"timestamp"`
	Profit    *decimal.Decimal `json:"profit,omitempty"` // set once resolved
}

// Recommendation is a suggested bet from the oracle. It is never persisted.
type Recommendation struct {
	ID                   string          `json:"id"`
	Event                string          `json:"event" validate:"required"`
	Category             string          `json:"category" validate:"required"`
	Player               string          `json:"player,omitempty"`
	EventDateTime        string          `json:"eventDateTime"`
	Odd                  decimal.Decimal `json:"odd" validate:"gt=0"`
	ImplicitProbability  decimal.Decimal `json:"implicitProbability" validate:"gte=0,lte=1"`
	EstimatedProbability decimal.Decimal `json:"estimatedProbability" validate:"gte=0,lte=1"`
	Type                 string          `json:"type" validate:"required"`
	Confidence           Confidence      `json:"confidence" validate:"oneof=LOW MEDIUM HIGH"`
	Reasoning            string          `json:"reasoning"`
}

// AuditResult is the oracle's verdict on one pending bet.
type AuditResult struct {
	ID     string    `json:"id" validate:"required"`
	Result BetResult `json:"result" validate:"oneof=PENDING WIN LOSS VOID"`
}

// Clone returns a deep copy of the user, so callers can derive a new snapshot
// without touching the original.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Bets != nil {
		c.Bets = make([]Bet, len(u.Bets))
		for i, b := range u.Bets {
			if b.Profit != nil {
				p := *b.Profit
				b.Profit = &p
			}
			c.Bets[i] = b
		}
	}
	return &c
}
