package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankroll-tracker/internal/ledger"
	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/oracle"
	"bankroll-tracker/internal/pkg/lock"
	"bankroll-tracker/internal/pkg/metrics"
	"bankroll-tracker/internal/store"
)

// fakeSource is a scripted oracle.
type fakeSource struct {
	mu        sync.Mutex
	recs      []model.Recommendation
	verdicts  map[string]model.BetResult
	audited   [][]model.Bet
	bankrolls []decimal.Decimal
}

func (f *fakeSource) FetchRecommendations(_ context.Context, bankroll decimal.Decimal) []model.Recommendation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bankrolls = append(f.bankrolls, bankroll)
	return f.recs
}

func (f *fakeSource) AuditPendingBets(_ context.Context, bets []model.Bet) []model.AuditResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audited = append(f.audited, bets)
	out := []model.AuditResult{}
	for _, b := range bets {
		if r, ok := f.verdicts[b.ID]; ok {
			out = append(out, model.AuditResult{ID: b.ID, Result: r})
		}
	}
	return out
}

type trackerFixture struct {
	svc    *TrackerService
	store  *store.Memory
	oracle *fakeSource
	user   *model.User
}

func newTracker(t *testing.T) *trackerFixture {
	t.Helper()
	st := store.NewMemory()
	n := 0
	l, err := ledger.New(ledger.DefaultStrategies(),
		ledger.WithClock(func() time.Time { return time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC) }),
		ledger.WithIDGenerator(func() string { n++; return fmt.Sprintf("bet-%d", n) }),
	)
	require.NoError(t, err)

	src := &fakeSource{verdicts: map[string]model.BetResult{}}
	svc := NewTrackerService(st, l, src, lock.NewUserLock(), time.Second, metrics.New())

	u := &model.User{
		ID:    "u1",
		Email: "ana@example.com",
		Bankroll: model.BankrollData{
			Initial:  decimal.NewFromInt(1000),
			Current:  decimal.NewFromInt(1000),
			Strategy: model.StrategyModerate,
		},
		Bets: []model.Bet{},
	}
	require.NoError(t, st.SaveUser(context.Background(), u))
	return &trackerFixture{svc: svc, store: st, oracle: src, user: u}
}

func pick(event string) model.Recommendation {
	return model.Recommendation{Event: event, Category: "NBA", Type: "Over 24.5 points", Odd: decimal.RequireFromString("2.5")}
}

func (f *trackerFixture) reload(t *testing.T) *model.User {
	t.Helper()
	u, err := f.store.LoadUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u
}

func TestTracker_PlaceBetPersists(t *testing.T) {
	f := newTracker(t)

	u, bet, err := f.svc.PlaceBet(context.Background(), "u1", pick("Lakers vs Celtics"))
	require.NoError(t, err)
	assert.Equal(t, "bet-1", bet.ID)
	assert.True(t, bet.Stake.Equal(decimal.NewFromInt(20)))
	assert.True(t, u.Bankroll.Current.Equal(decimal.NewFromInt(980)))

	stored := f.reload(t)
	require.Len(t, stored.Bets, 1)
	assert.Equal(t, model.ResultPending, stored.Bets[0].Result)
	assert.True(t, stored.Bankroll.Current.Equal(decimal.NewFromInt(980)))
}

func TestTracker_PlaceBetRejected(t *testing.T) {
	f := newTracker(t)
	_, err := f.svc.UpdateBankroll(context.Background(), "u1", model.FieldCurrent, decimal.Zero)
	require.NoError(t, err)

	_, _, err = f.svc.PlaceBet(context.Background(), "u1", pick("x"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Empty(t, f.reload(t).Bets)

	_, _, err = f.svc.PlaceBet(context.Background(), "u1", model.Recommendation{Event: "x"})
	assert.ErrorIs(t, err, ledger.ErrInvalidRecommendation)
}

func TestTracker_UnknownUser(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()

	_, _, err := f.svc.PlaceBet(ctx, "ghost", pick("x"))
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.Summary(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.SyncResults(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.Recommendations(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTracker_ResolveBet(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()
	_, bet, err := f.svc.PlaceBet(ctx, "u1", pick("x"))
	require.NoError(t, err)

	u, changed, err := f.svc.ResolveBet(ctx, "u1", bet.ID, model.ResultWin)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, u.Bankroll.Current.Equal(decimal.NewFromInt(1030)), u.Bankroll.Current.String())

	_, changed, err = f.svc.ResolveBet(ctx, "u1", bet.ID, model.ResultLoss)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, f.reload(t).Bankroll.Current.Equal(decimal.NewFromInt(1030)))

	_, _, err = f.svc.ResolveBet(ctx, "u1", bet.ID, model.ResultPending)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTracker_DeleteBetRefundsPending(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()
	_, bet, err := f.svc.PlaceBet(ctx, "u1", pick("x"))
	require.NoError(t, err)

	u, changed, err := f.svc.DeleteBet(ctx, "u1", bet.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, u.Bankroll.Current.Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, f.reload(t).Bets)

	_, changed, err = f.svc.DeleteBet(ctx, "u1", bet.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTracker_UpdateBankroll(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()

	u, err := f.svc.UpdateBankroll(ctx, "u1", model.FieldInitial, decimal.NewFromInt(-5))
	require.NoError(t, err)
	assert.True(t, u.Bankroll.Initial.IsZero())

	_, err = f.svc.UpdateBankroll(ctx, "u1", "total", decimal.NewFromInt(5))
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTracker_UpdateStrategy(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()

	u, err := f.svc.UpdateStrategy(ctx, "u1", model.StrategyRisky)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRisky, u.Bankroll.Strategy)
	assert.Equal(t, model.StrategyRisky, f.reload(t).Bankroll.Strategy)

	_, err = f.svc.UpdateStrategy(ctx, "u1", "YOLO")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "strategy", ve.Field)
}

func TestTracker_ClearHistoryKeepsStakes(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()
	_, _, err := f.svc.PlaceBet(ctx, "u1", pick("x"))
	require.NoError(t, err)

	u, err := f.svc.ClearHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, u.Bets)
	assert.True(t, u.Bankroll.Current.Equal(decimal.NewFromInt(980)))
}

func TestTracker_ClearHistoryAtRefusesStaleConfirmation(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()
	_, first, err := f.svc.PlaceBet(ctx, "u1", pick("a"))
	require.NoError(t, err)
	version := HistoryVersion(f.reload(t).Bets)

	// settling keeps the version
	_, _, err = f.svc.ResolveBet(ctx, "u1", first.ID, model.ResultLoss)
	require.NoError(t, err)
	assert.Equal(t, version, HistoryVersion(f.reload(t).Bets))

	_, _, err = f.svc.PlaceBet(ctx, "u1", pick("b"))
	require.NoError(t, err)

	_, err = f.svc.ClearHistoryAt(ctx, "u1", version)
	assert.ErrorIs(t, err, ErrHistoryChanged)
	assert.Len(t, f.reload(t).Bets, 2)

	_, err = f.svc.ClearHistoryAt(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrHistoryChanged)

	u, err := f.svc.ClearHistoryAt(ctx, "u1", HistoryVersion(f.reload(t).Bets))
	require.NoError(t, err)
	assert.Empty(t, u.Bets)
	assert.Empty(t, f.reload(t).Bets)
}

func TestHistoryVersion(t *testing.T) {
	a := []model.Bet{{ID: "a"}, {ID: "b"}}
	assert.Equal(t, HistoryVersion(a), HistoryVersion([]model.Bet{{ID: "a", Result: model.ResultWin}, {ID: "b"}}))
	assert.NotEqual(t, HistoryVersion(a), HistoryVersion([]model.Bet{{ID: "a"}}))
	assert.NotEqual(t, HistoryVersion(a), HistoryVersion([]model.Bet{{ID: "a"}, {ID: "c"}}))
	assert.NotEqual(t, HistoryVersion([]model.Bet{{ID: "ab"}}), HistoryVersion([]model.Bet{{ID: "a"}, {ID: "b"}}))
}

func TestTracker_Recommendations(t *testing.T) {
	f := newTracker(t)
	f.oracle.recs = []model.Recommendation{pick("a"), pick("b")}

	recs, err := f.svc.Recommendations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	require.Len(t, f.oracle.bankrolls, 1)
	assert.True(t, f.oracle.bankrolls[0].Equal(decimal.NewFromInt(1000)))
}

func TestTracker_SyncResults(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()
	_, b1, err := f.svc.PlaceBet(ctx, "u1", pick("a"))
	require.NoError(t, err)
	_, b2, err := f.svc.PlaceBet(ctx, "u1", pick("b"))
	require.NoError(t, err)
	_, b3, err := f.svc.PlaceBet(ctx, "u1", pick("c"))
	require.NoError(t, err)

	f.oracle.verdicts[b1.ID] = model.ResultWin
	f.oracle.verdicts[b2.ID] = model.ResultPending
	f.oracle.verdicts[b3.ID] = model.ResultLoss

	n, err := f.svc.SyncResults(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u := f.reload(t)
	got1, _ := ledger.FindBet(u, b1.ID)
	got2, _ := ledger.FindBet(u, b2.ID)
	got3, _ := ledger.FindBet(u, b3.ID)
	assert.Equal(t, model.ResultWin, got1.Result)
	assert.Equal(t, model.ResultPending, got2.Result)
	assert.Equal(t, model.ResultLoss, got3.Result)

	// only the remaining pending bet is sent on the next run
	n, err = f.svc.SyncResults(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, f.oracle.audited, 2)
	require.Len(t, f.oracle.audited[1], 1)
	assert.Equal(t, b2.ID, f.oracle.audited[1][0].ID)
}

func TestTracker_SyncResultsNoPendingSkipsOracle(t *testing.T) {
	f := newTracker(t)
	n, err := f.svc.SyncResults(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.oracle.audited)
}

// brokenClient fails every call, by error or by panic.
type brokenClient struct {
	panics bool
	calls  int
}

func (b *brokenClient) Recommend(context.Context, decimal.Decimal) ([]model.Recommendation, error) {
	return nil, b.fail()
}

func (b *brokenClient) Audit(context.Context, []model.Bet) ([]model.AuditResult, error) {
	return nil, b.fail()
}

func (b *brokenClient) fail() error {
	b.calls++
	if b.panics {
		panic("oracle backend exploded")
	}
	return oracle.ErrUnavailable
}

func TestTracker_SyncResultsWithFailingOracleChangesNothing(t *testing.T) {
	for _, panics := range []bool{false, true} {
		t.Run(fmt.Sprintf("panics=%v", panics), func(t *testing.T) {
			f := newTracker(t)
			ctx := context.Background()
			_, _, err := f.svc.PlaceBet(ctx, "u1", pick("a"))
			require.NoError(t, err)
			_, _, err = f.svc.PlaceBet(ctx, "u1", pick("b"))
			require.NoError(t, err)
			before := f.reload(t)

			client := &brokenClient{panics: panics}
			f.svc.oracle = oracle.NewAdapter(client, time.Second, nil)

			n, err := f.svc.SyncResults(ctx, "u1")
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Equal(t, 1, client.calls)

			after := f.reload(t)
			assert.Equal(t, before.Bets, after.Bets)
			assert.True(t, after.Bankroll.Current.Equal(before.Bankroll.Current),
				"current %s, was %s", after.Bankroll.Current, before.Bankroll.Current)
		})
	}
}

func TestTracker_SyncAll(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()

	other := f.user.Clone()
	other.ID = "u2"
	other.Email = "bob@example.com"
	require.NoError(t, f.store.SaveUser(ctx, other))

	idle := f.user.Clone()
	idle.ID = "u3"
	idle.Email = "idle@example.com"
	require.NoError(t, f.store.SaveUser(ctx, idle))

	_, b1, err := f.svc.PlaceBet(ctx, "u1", pick("a"))
	require.NoError(t, err)
	_, b2, err := f.svc.PlaceBet(ctx, "u2", pick("b"))
	require.NoError(t, err)
	f.oracle.verdicts[b1.ID] = model.ResultVoid
	f.oracle.verdicts[b2.ID] = model.ResultWin

	report, err := f.svc.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Accounts: 2, Resolved: 2}, report)
	assert.Len(t, f.oracle.audited, 2)

	u1 := f.reload(t)
	assert.True(t, u1.Bankroll.Current.Equal(decimal.NewFromInt(1000)))
}

func TestTracker_SyncAllStopsOnCancel(t *testing.T) {
	f := newTracker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.SyncAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTracker_Summary(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()
	_, bet, err := f.svc.PlaceBet(ctx, "u1", pick("a"))
	require.NoError(t, err)
	_, _, err = f.svc.ResolveBet(ctx, "u1", bet.ID, model.ResultWin)
	require.NoError(t, err)

	d, err := f.svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Summary.Wins)
	assert.True(t, d.Summary.TotalProfit.Equal(decimal.NewFromInt(30)))
	assert.Len(t, d.Curve, 2)
}

func TestTracker_ConcurrentPlacementsAreSerialised(t *testing.T) {
	f := newTracker(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := f.svc.PlaceBet(ctx, "u1", pick(fmt.Sprintf("event-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	u := f.reload(t)
	require.Len(t, u.Bets, 20)
	staked := decimal.Zero
	for _, b := range u.Bets {
		staked = staked.Add(b.Stake)
	}
	assert.True(t, u.Bankroll.Current.Add(staked).Equal(decimal.NewFromInt(1000)),
		"current %s + staked %s", u.Bankroll.Current, staked)
}

func TestTracker_LockTimeout(t *testing.T) {
	f := newTracker(t)
	locks := lock.NewUserLock()
	f.svc.locks = locks
	f.svc.lockTimeout = 20 * time.Millisecond

	locks.Lock("u1")
	defer locks.Unlock("u1")

	_, _, err := f.svc.PlaceBet(context.Background(), "u1", pick("x"))
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
}
