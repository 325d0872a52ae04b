package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/store"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// AccountOptions holds registration rules.
type AccountOptions struct {
	MinPasswordLength int
	MinBankroll       decimal.Decimal
	DefaultUsername   string
	BcryptCost        int
}

// AccountOptionsFromConfig converts the auth config section.
func AccountOptionsFromConfig(cfg config.AuthConfig) AccountOptions {
	return AccountOptions{
		MinPasswordLength: cfg.MinPasswordLength,
		MinBankroll:       decimal.NewFromFloat(cfg.MinBankroll),
		DefaultUsername:   cfg.DefaultUsername,
		BcryptCost:        bcrypt.DefaultCost,
	}
}

// RegisterInput is a sign-up request. Device receives the new session.
type RegisterInput struct {
	Device          string
	Username        string
	Email           string `validate:"required,email"`
	Password        string
	InitialBankroll decimal.Decimal
}

// AccountService handles registration, login and sessions.
type AccountService struct {
	store    store.AccountStore
	opts     AccountOptions
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewAccountService creates an AccountService.
func NewAccountService(st store.AccountStore, opts AccountOptions) *AccountService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &AccountService{
		store:    st,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Register creates an account with the CONSERVATIVE strategy and logs it in
// on in.Device. The initial bankroll is floored at the configured minimum.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, invalid("email", "%q is not a valid address", in.Email)
	}
	if len(in.Password) < s.opts.MinPasswordLength {
		return nil, invalid("password", "must have at least %d characters", s.opts.MinPasswordLength)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, invalid("password", "must have at most %d bytes", maxPasswordBytes)
	}

	taken, err := s.store.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, invalid("password", "must have at most %d bytes", maxPasswordBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = s.opts.DefaultUsername
	}
	bankroll := decimal.Max(in.InitialBankroll, s.opts.MinBankroll)

	user := &model.User{
		ID:           s.newID(),
		Username:     username,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
		Bankroll: model.BankrollData{
			Initial:  bankroll,
			Current:  bankroll,
			Strategy: model.StrategyConservative,
		},
		Bets: []model.Bet{},
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	if in.Device != "" {
		if err := s.store.SaveSession(ctx, in.Device, user.ID); err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
	}

	log.Info().Str("user_id", user.ID).Str("bankroll", bankroll.String()).Msg("Account registered")
	return user, nil
}

// Login verifies credentials and binds the account to device.
func (s *AccountService) Login(ctx context.Context, device, email, password string) (*model.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.store.SaveSession(ctx, device, user.ID); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	log.Info().Str("user_id", user.ID).Str("device", device).Msg("Logged in")
	return user, nil
}

// Logout clears the device's session.
func (s *AccountService) Logout(ctx context.Context, device string) error {
	if err := s.store.ClearSession(ctx, device); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Current returns the user logged in on device. A missing session, or one
// pointing at a missing or unreadable account, is ErrNoSession.
func (s *AccountService) Current(ctx context.Context, device string) (*model.User, error) {
	id, err := s.store.LoadSession(ctx, device)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	user, err := s.store.LoadUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("device", device).Str("user_id", id).Msg("Session points at a missing account")
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}
