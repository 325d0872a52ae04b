package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"bankroll-tracker/internal/model"
)

// drawCents draws a non-negative money amount with two decimal places.
func drawCents(t *rapid.T, label string, max int64) decimal.Decimal {
	return decimal.New(rapid.Int64Range(0, max).Draw(t, label), -2)
}

func drawOdd(t *rapid.T, label string) decimal.Decimal {
	return decimal.New(rapid.Int64Range(101, 1500).Draw(t, label), -2)
}

func drawStrategy(t *rapid.T) model.RiskStrategy {
	return rapid.SampledFrom(model.Strategies()).Draw(t, "strategy")
}

func drawFinalResult(t *rapid.T, label string) model.BetResult {
	return rapid.SampledFrom([]model.BetResult{model.ResultWin, model.ResultLoss, model.ResultVoid}).Draw(t, label)
}

func drawUser(t *rapid.T) *model.User {
	current := drawCents(t, "current", 10_000_000)
	return &model.User{
		ID: "u",
		Bankroll: model.BankrollData{
			Initial:  current,
			Current:  current,
			Strategy: drawStrategy(t),
		},
		Bets: []model.Bet{},
	}
}

// TestBankrollNeverNegativeProperty runs random operation sequences and checks
// that the current bankroll never drops below zero.
func TestBankrollNeverNegativeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := New(DefaultStrategies())
		if err != nil {
			t.Fatal(err)
		}
		u := drawUser(t)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			pick := func(label string) string {
				if len(u.Bets) == 0 {
					return "missing"
				}
				return u.Bets[rapid.IntRange(0, len(u.Bets)-1).Draw(t, label)].ID
			}

			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				u, _, _ = l.PlaceBet(u, model.Recommendation{Event: "e", Type: "t", Odd: drawOdd(t, "odd")})
			case 1:
				u = l.ResolveBet(u, pick("resolve"), drawFinalResult(t, "result"))
			case 2:
				u = l.DeleteBet(u, pick("delete"))
			case 3:
				v := decimal.New(rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "value"), -2)
				field := rapid.SampledFrom([]model.BankrollField{model.FieldInitial, model.FieldCurrent}).Draw(t, "field")
				u = l.UpdateBankroll(u, field, v)
			case 4:
				u = l.UpdateStrategy(u, drawStrategy(t))
			case 5:
				u = l.ClearHistory(u)
			case 6:
				u = l.SyncResolutions(u, []model.AuditResult{{ID: pick("sync"), Result: drawFinalResult(t, "syncResult")}})
			}

			if u.Bankroll.Current.IsNegative() {
				t.Fatalf("current went negative: %s", u.Bankroll.Current)
			}
			if u.Bankroll.Initial.IsNegative() {
				t.Fatalf("initial went negative: %s", u.Bankroll.Initial)
			}
		}
	})
}

// TestPlaceDeleteRefundProperty checks that deleting a freshly placed bet
// restores the bankroll exactly.
func TestPlaceDeleteRefundProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := New(DefaultStrategies())
		if err != nil {
			t.Fatal(err)
		}
		u := drawUser(t)
		before := u.Bankroll.Current

		placed, bet, err := l.PlaceBet(u, model.Recommendation{Event: "e", Type: "t", Odd: drawOdd(t, "odd")})
		if err != nil {
			if !u.Bankroll.Current.IsZero() {
				t.Fatalf("unexpected error for current=%s: %v", before, err)
			}
			return
		}

		restored := l.DeleteBet(placed, bet.ID)
		if !restored.Bankroll.Current.Equal(before) {
			t.Fatalf("refund mismatch: before=%s after=%s stake=%s", before, restored.Bankroll.Current, bet.Stake)
		}
		if len(restored.Bets) != 0 {
			t.Fatalf("bet not removed")
		}
	})
}

// TestResolveIdempotentProperty checks that a second resolution changes nothing.
func TestResolveIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := New(DefaultStrategies())
		if err != nil {
			t.Fatal(err)
		}
		u := drawUser(t)
		u.Bankroll.Current = u.Bankroll.Current.Add(decimal.NewFromInt(1))

		u, bet, err := l.PlaceBet(u, model.Recommendation{Event: "e", Type: "t", Odd: drawOdd(t, "odd")})
		if err != nil {
			t.Fatal(err)
		}

		first := l.ResolveBet(u, bet.ID, drawFinalResult(t, "first"))
		second := l.ResolveBet(first, bet.ID, drawFinalResult(t, "second"))
		if second != first {
			t.Fatalf("second resolution produced a new snapshot")
		}
	})
}

// TestProfitFormulaProperty checks profit = stake*(odd-1) on win, -stake on
// loss and 0 on void, and that the bankroll moves by the payout.
func TestProfitFormulaProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := New(DefaultStrategies())
		if err != nil {
			t.Fatal(err)
		}
		u := drawUser(t)
		u.Bankroll.Current = u.Bankroll.Current.Add(decimal.NewFromInt(1))

		u, bet, err := l.PlaceBet(u, model.Recommendation{Event: "e", Type: "t", Odd: drawOdd(t, "odd")})
		if err != nil {
			t.Fatal(err)
		}
		result := drawFinalResult(t, "result")
		next := l.ResolveBet(u, bet.ID, result)
		settled, _ := FindBet(next, bet.ID)

		var want decimal.Decimal
		switch result {
		case model.ResultWin:
			want = bet.Stake.Mul(bet.Odd.Sub(decimal.NewFromInt(1)))
		case model.ResultLoss:
			want = bet.Stake.Neg()
		case model.ResultVoid:
			want = decimal.Zero
		}
		if settled.Profit == nil || !settled.Profit.Equal(want) {
			t.Fatalf("profit for %s: want %s, got %v", result, want, settled.Profit)
		}

		delta := next.Bankroll.Current.Sub(u.Bankroll.Current)
		if !delta.Equal(want.Add(bet.Stake)) {
			t.Fatalf("bankroll delta for %s: want %s, got %s", result, want.Add(bet.Stake), delta)
		}
	})
}

// TestSyncCommutativeProperty checks that the order of oracle verdicts over
// distinct bets does not change the final bankroll.
func TestSyncCommutativeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := New(DefaultStrategies())
		if err != nil {
			t.Fatal(err)
		}
		u := drawUser(t)
		u.Bankroll.Current = u.Bankroll.Current.Add(decimal.NewFromInt(100))

		n := rapid.IntRange(1, 8).Draw(t, "bets")
		var results []model.AuditResult
		for i := 0; i < n; i++ {
			var bet *model.Bet
			u, bet, err = l.PlaceBet(u, model.Recommendation{Event: "e", Type: "t", Odd: drawOdd(t, "odd")})
			if err != nil {
				t.Fatal(err)
			}
			results = append(results, model.AuditResult{ID: bet.ID, Result: drawFinalResult(t, "result")})
		}

		perm := rapid.Permutation(results).Draw(t, "order")
		a := l.SyncResolutions(u, results)
		b := l.SyncResolutions(u, perm)
		if !a.Bankroll.Current.Equal(b.Bankroll.Current) {
			t.Fatalf("order changed outcome: %s vs %s", a.Bankroll.Current, b.Bankroll.Current)
		}
	})
}

// TestClearHistoryKeepsBankrollProperty checks that clearing never refunds.
func TestClearHistoryKeepsBankrollProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := New(DefaultStrategies())
		if err != nil {
			t.Fatal(err)
		}
		u := drawUser(t)
		n := rapid.IntRange(0, 5).Draw(t, "bets")
		for i := 0; i < n; i++ {
			u, _, _ = l.PlaceBet(u, model.Recommendation{Event: "e", Type: "t", Odd: drawOdd(t, "odd")})
		}

		cleared := l.ClearHistory(u)
		if !cleared.Bankroll.Current.Equal(u.Bankroll.Current) {
			t.Fatalf("clear changed bankroll: %s -> %s", u.Bankroll.Current, cleared.Bankroll.Current)
		}
		if len(cleared.Bets) != 0 {
			t.Fatalf("clear left %d bets", len(cleared.Bets))
		}
	})
}
