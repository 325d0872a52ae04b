package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/store"
)

func newTestAccounts(t *testing.T) (*AccountService, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc := NewAccountService(st, AccountOptions{
		MinPasswordLength: 6,
		MinBankroll:       decimal.NewFromInt(1),
		DefaultUsername:   "Investor",
		BcryptCost:        bcrypt.MinCost,
	})
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC) }
	return svc, st
}

func register(t *testing.T, svc *AccountService, device, email string) *model.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Device:          device,
		Username:        "Ana",
		Email:           email,
		Password:        "secret1",
		InitialBankroll: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	svc, st := newTestAccounts(t)
	u := register(t, svc, "tg:1", "ana@example.com")

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Ana", u.Username)
	assert.Equal(t, model.StrategyConservative, u.Bankroll.Strategy)
	assert.True(t, u.Bankroll.Initial.Equal(decimal.NewFromInt(1000)))
	assert.True(t, u.Bankroll.Current.Equal(decimal.NewFromInt(1000)))
	assert.NotNil(t, u.Bets)
	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")))

	stored, err := st.LoadUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, stored.Email)

	current, err := svc.Current(context.Background(), "tg:1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)
}

func TestRegister_Defaults(t *testing.T) {
	svc, _ := newTestAccounts(t)
	u, err := svc.Register(context.Background(), RegisterInput{
		Email:           "bob@example.com",
		Password:        "secret1",
		InitialBankroll: decimal.RequireFromString("-50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Investor", u.Username)
	assert.True(t, u.Bankroll.Initial.Equal(decimal.NewFromInt(1)))
	assert.True(t, u.Bankroll.Current.Equal(decimal.NewFromInt(1)))
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestAccounts(t)
	cases := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"bad email", "not-an-email", "secret1", "email"},
		{"empty email", "", "secret1", "email"},
		{"short password", "ana@example.com", "12345", "password"},
		{"password over 72 bytes", "ana@example.com", strings.Repeat("x", 73), "password"},
		{"multibyte password over 72 bytes", "ana@example.com", strings.Repeat("ñ", 37), "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), RegisterInput{Email: tc.email, Password: tc.password})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestRegister_PasswordAtBcryptLimit(t *testing.T) {
	svc, _ := newTestAccounts(t)
	pw := strings.Repeat("x", 72)
	_, err := svc.Register(context.Background(), RegisterInput{Device: "tg:9", Email: "max@example.com", Password: pw})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "tg:9", "max@example.com", pw)
	assert.NoError(t, err)
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	svc, _ := newTestAccounts(t)
	register(t, svc, "", "ana@example.com")

	_, err := svc.Register(context.Background(), RegisterInput{Email: "ANA@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestAccounts(t)
	u := register(t, svc, "", "ana@example.com")

	_, err := svc.Current(context.Background(), "tg:2")
	assert.ErrorIs(t, err, ErrNoSession)

	got, err := svc.Login(context.Background(), "tg:2", "Ana@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	current, err := svc.Current(context.Background(), "tg:2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _ := newTestAccounts(t)
	register(t, svc, "", "ana@example.com")

	_, err := svc.Login(context.Background(), "tg:2", "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "tg:2", "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Current(context.Background(), "tg:2")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLogout(t *testing.T) {
	svc, _ := newTestAccounts(t)
	register(t, svc, "tg:1", "ana@example.com")

	require.NoError(t, svc.Logout(context.Background(), "tg:1"))
	_, err := svc.Current(context.Background(), "tg:1")
	assert.ErrorIs(t, err, ErrNoSession)

	assert.NoError(t, svc.Logout(context.Background(), "tg:1"))
}

func TestCurrent_DanglingSessionFailsClosed(t *testing.T) {
	svc, st := newTestAccounts(t)
	require.NoError(t, st.SaveSession(context.Background(), "tg:9", "deleted-user"))

	_, err := svc.Current(context.Background(), "tg:9")
	assert.ErrorIs(t, err, ErrNoSession)
}
