// Package storetest is a contract suite shared by every AccountStore driver.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.AccountStore

// NewUser builds a valid user document for tests.
func NewUser(id, email string) *model.User {
	profit := decimal.RequireFromString("15.5")
	return &model.User{
		ID:           id,
		Username:     "Investor",
		Email:        email,
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Bankroll: model.BankrollData{
			Initial:  decimal.RequireFromString("1000"),
			Current:  decimal.RequireFromString("995.5"),
			Strategy: model.StrategyModerate,
		},
		Bets: []model.Bet{
			{
				ID: "b2", Event: "Lakers vs Celtics", Player: "LeBron James", Category: "NBA",
				Type: "Over 25.5 points", Odd: decimal.RequireFromString("1.85"),
				Stake: decimal.RequireFromString("20"), Result: model.ResultPending,
				Timestamp: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
			},
			{
				ID: "b1", Event: "Flamengo vs Palmeiras", Category: "Football",
				Type: "Over 2.5 goals", Odd: decimal.RequireFromString("1.775"),
				Stake: decimal.RequireFromString("20"), Result: model.ResultWin,
				Timestamp: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC), Profit: &profit,
			},
		},
	}
}

// AssertSameUser compares documents by value, tolerating decimal and time
// representation changes from a storage round trip.
func AssertSameUser(t *testing.T, want, got *model.User) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Username, got.Username)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt: want %s, got %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.Bankroll.Initial.Equal(got.Bankroll.Initial), "initial: want %s, got %s", want.Bankroll.Initial, got.Bankroll.Initial)
	assert.True(t, want.Bankroll.Current.Equal(got.Bankroll.Current), "current: want %s, got %s", want.Bankroll.Current, got.Bankroll.Current)
	assert.Equal(t, want.Bankroll.Strategy, got.Bankroll.Strategy)

	require.Len(t, got.Bets, len(want.Bets))
	for i := range want.Bets {
		w, g := want.Bets[i], got.Bets[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Event, g.Event)
		assert.Equal(t, w.Player, g.Player)
		assert.Equal(t, w.Category, g.Category)
		assert.Equal(t, w.Type, g.Type)
		assert.Equal(t, w.Result, g.Result)
		assert.True(t, w.Odd.Equal(g.Odd), "bet %s odd", w.ID)
		assert.True(t, w.Stake.Equal(g.Stake), "bet %s stake", w.ID)
		assert.True(t, w.Timestamp.Equal(g.Timestamp), "bet %s timestamp", w.ID)
		if w.Profit == nil {
			assert.Nil(t, g.Profit, "bet %s profit", w.ID)
		} else if assert.NotNil(t, g.Profit, "bet %s profit", w.ID) {
			assert.True(t, w.Profit.Equal(*g.Profit), "bet %s profit", w.ID)
		}
	}
}

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("LoadUserMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadUser(context.Background(), "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SaveAndLoadUser", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := NewUser("u1", "ana@example.com")

		require.NoError(t, s.SaveUser(ctx, u))
		got, err := s.LoadUser(ctx, "u1")
		require.NoError(t, err)
		AssertSameUser(t, u, got)
	})

	t.Run("SaveUserReplacesDocument", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := NewUser("u1", "ana@example.com")
		require.NoError(t, s.SaveUser(ctx, u))

		u2 := u.Clone()
		u2.Bets = []model.Bet{}
		u2.Bankroll.Current = decimal.RequireFromString("1200.25")
		require.NoError(t, s.SaveUser(ctx, u2))

		got, err := s.LoadUser(ctx, "u1")
		require.NoError(t, err)
		AssertSameUser(t, u2, got)
		assert.NotNil(t, got.Bets)
	})

	t.Run("LoadedUserIsDetached", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveUser(ctx, NewUser("u1", "ana@example.com")))

		got, err := s.LoadUser(ctx, "u1")
		require.NoError(t, err)
		got.Bets[0].Event = "mutated"
		got.Bankroll.Current = decimal.Zero

		again, err := s.LoadUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Lakers vs Celtics", again.Bets[0].Event)
		assert.False(t, again.Bankroll.Current.IsZero())
	})

	t.Run("EmailUniqueCaseInsensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveUser(ctx, NewUser("u1", "Ana@Example.com")))

		err := s.SaveUser(ctx, NewUser("u2", "ana@example.COM"))
		assert.ErrorIs(t, err, store.ErrAlreadyExists)

		// the owner can re-save with a different letter case
		require.NoError(t, s.SaveUser(ctx, NewUser("u1", "ANA@example.com")))
	})

	t.Run("FindByEmail", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveUser(ctx, NewUser("u1", "ana@example.com")))

		got, err := s.FindByEmail(ctx, "  ANA@example.com ")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)

		_, err = s.FindByEmail(ctx, "bob@example.com")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("EmailExists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveUser(ctx, NewUser("u1", "ana@example.com")))

		ok, err := s.EmailExists(ctx, "Ana@Example.com")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.EmailExists(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("EmailChangeReleasesOldAddress", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := NewUser("u1", "old@example.com")
		require.NoError(t, s.SaveUser(ctx, u))

		u.Email = "new@example.com"
		require.NoError(t, s.SaveUser(ctx, u))

		ok, err := s.EmailExists(ctx, "old@example.com")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, s.SaveUser(ctx, NewUser("u2", "old@example.com")))
	})

	t.Run("ListUserIDsInCreationOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ids, err := s.ListUserIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, s.SaveUser(ctx, NewUser("c", "c@example.com")))
		require.NoError(t, s.SaveUser(ctx, NewUser("a", "a@example.com")))
		require.NoError(t, s.SaveUser(ctx, NewUser("b", "b@example.com")))
		require.NoError(t, s.SaveUser(ctx, NewUser("c", "c@example.com")))

		ids, err = s.ListUserIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, ids)
	})

	t.Run("Sessions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.LoadSession(ctx, "phone")
		assert.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.SaveSession(ctx, "phone", "u1"))
		require.NoError(t, s.SaveSession(ctx, "laptop", "u2"))

		id, err := s.LoadSession(ctx, "phone")
		require.NoError(t, err)
		assert.Equal(t, "u1", id)

		require.NoError(t, s.SaveSession(ctx, "phone", "u3"))
		id, err = s.LoadSession(ctx, "phone")
		require.NoError(t, err)
		assert.Equal(t, "u3", id)

		require.NoError(t, s.ClearSession(ctx, "phone"))
		_, err = s.LoadSession(ctx, "phone")
		assert.ErrorIs(t, err, store.ErrNotFound)

		id, err = s.LoadSession(ctx, "laptop")
		require.NoError(t, err)
		assert.Equal(t, "u2", id)

		assert.NoError(t, s.ClearSession(ctx, "never-seen"))
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
