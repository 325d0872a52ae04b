package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/model"
)

// StrategyTable maps each risk strategy to the fraction of the current
// bankroll it stakes (0.01 = 1%).
type StrategyTable map[model.RiskStrategy]decimal.Decimal

// DefaultStrategies returns the stock table: 1%, 2% and 3%.
func DefaultStrategies() StrategyTable {
	return StrategyTable{
		model.StrategyConservative: decimal.NewFromFloat(0.01),
		model.StrategyModerate:     decimal.NewFromFloat(0.02),
		model.StrategyRisky:        decimal.NewFromFloat(0.03),
	}
}

// StrategiesFromConfig builds a table from strategy names and fractions, as
// read from configuration. Names are matched case-insensitively.
func StrategiesFromConfig(raw map[string]float64) (StrategyTable, error) {
	table := make(StrategyTable, len(raw))
	for name, pct := range raw {
		s, ok := model.ParseStrategy(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
		table[s] = decimal.NewFromFloat(pct)
	}
	return table, table.Validate()
}

// Validate checks that the table is non-empty and every fraction is positive.
func (t StrategyTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("strategy table is empty")
	}
	for s, pct := range t {
		if !pct.IsPositive() {
			return fmt.Errorf("strategy %s: percentage must be positive, got %s", s, pct)
		}
	}
	return nil
}

// Percentage returns the stake fraction for s.
func (t StrategyTable) Percentage(s model.RiskStrategy) (decimal.Decimal, bool) {
	pct, ok := t[s]
	return pct, ok
}

// Has reports whether s is configured.
func (t StrategyTable) Has(s model.RiskStrategy) bool {
	_, ok := t[s]
	return ok
}

// StakeFor returns the stake a bankroll of current would commit under s.
func (t StrategyTable) StakeFor(current decimal.Decimal, s model.RiskStrategy) (decimal.Decimal, error) {
	pct, ok := t.Percentage(s)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownStrategy, s)
	}
	return current.Mul(pct), nil
}
