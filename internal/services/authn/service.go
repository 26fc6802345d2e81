package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/marketid/internal/dependencies/clock"
	"github.com/mcoot/marketid/internal/dependencies/random"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/storage"
)

// Errors
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = errors.New("password too short")
)

// MinPasswordLength is the shortest password accepted at sign-up
const MinPasswordLength = 8

// Session is an access token issued at sign-in
type Session struct {
	Token     string
	Principal *model.Principal
	ExpiresAt time.Time
}

// Config holds configuration for the authentication service
type Config struct {
	// Secret signs access tokens. A random secret is generated when empty,
	// which invalidates all tokens on restart.
	Secret     string
	Issuer     string
	TokenTTL   time.Duration
	FeedBuffer int
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		Issuer:     "marketid",
		TokenTTL:   time.Hour,
		FeedBuffer: 16,
	}
}

// Service is the local authentication backend: accounts, access tokens and
// the session-change feed
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	tokens  *TokenManager
	feed    *Feed
	logger  *slog.Logger

	mu sync.Mutex
	// active maps each user to the IDs and expiries of their live tokens
	active map[model.PrincipalID]map[string]time.Time
	// revoked holds token IDs that must be rejected until they expire
	revoked map[string]time.Time
}

// New creates a Service and starts its feed
func New(storage storage.Storage, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	if cfg.FeedBuffer == 0 {
		cfg.FeedBuffer = defaults.FeedBuffer
	}

	logger = logger.With(slog.String("component", "authn"))
	if cfg.Secret == "" {
		cfg.Secret = rnd.String(48, random.TokenAlphabet)
		logger.Warn("no token secret configured, using an ephemeral one")
	}

	feed := NewFeed(logger, cfg.FeedBuffer)
	go feed.Run()

	return &Service{
		storage: storage,
		clock:   clk,
		tokens:  NewTokenManager(cfg.Secret, cfg.TokenTTL, cfg.Issuer, clk),
		feed:    feed,
		logger:  logger,
		active:  make(map[model.PrincipalID]map[string]time.Time),
		revoked: make(map[string]time.Time),
	}
}

// Feed returns the session-change feed
func (s *Service) Feed() *Feed {
	return s.feed
}

// Close stops the feed
func (s *Service) Close() {
	s.feed.Close()
}

// SignUp creates an account. It does not sign the new principal in.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Principal, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	_, err := s.storage.GetAccountByEmail(ctx, email)
	if err == nil {
		return nil, model.ErrEmailExists
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	account := &model.Account{
		PrincipalID:  model.PrincipalID(uuid.NewString()),
		Email:        email,
		PasswordHash: string(hash),
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.SaveAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account created", slog.String("user_id", string(account.PrincipalID)))
	return account.Principal(), nil
}

// SignIn checks credentials and issues an access token
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.storage.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	return s.issue(account.Principal())
}

// Validate returns the principal an access token was issued to
func (s *Service) Validate(token string) (*model.Principal, error) {
	if token == "" {
		return nil, model.ErrInvalidSession
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, model.ErrInvalidSession
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, model.ErrInvalidSession
	}

	return claims.Principal(), nil
}

// Revoke invalidates a single access token
func (s *Service) Revoke(token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return model.ErrInvalidSession
	}

	s.mu.Lock()
	s.revokeLocked(model.PrincipalID(claims.Subject), claims.ID, claims.ExpiresAt.Time)
	s.mu.Unlock()
	return nil
}

// Reissue exchanges a valid token for a fresh one minted from the current
// records. When the profile carries a valid role that differs from the account's,
// the account is updated first so the new token converges on the profile role.
func (s *Service) Reissue(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, model.ErrInvalidSession
	}
	if _, err := s.Validate(token); err != nil {
		return nil, err
	}

	userID := model.PrincipalID(claims.Subject)
	account, err := s.storage.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reissue: load account: %w", err)
	}

	profile, err := s.storage.GetProfile(ctx, userID)
	switch {
	case err == nil:
		if profile.Role.IsValid() && account.Principal().MetadataString(model.MetadataRole) != string(profile.Role) {
			if account.Metadata == nil {
				account.Metadata = map[string]any{}
			}
			account.Metadata[model.MetadataRole] = string(profile.Role)
			account.UpdatedAt = s.clock.Now()
			if err := s.storage.SaveAccount(ctx, account); err != nil {
				return nil, fmt.Errorf("reissue: sync role: %w", err)
			}
			s.logger.Info("account role synced from profile",
				slog.String("user_id", string(userID)),
				slog.String("role", string(profile.Role)))
		}
	case errors.Is(err, model.ErrProfileNotFound):
	default:
		return nil, fmt.Errorf("reissue: load profile: %w", err)
	}

	session, err := s.issue(account.Principal())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.revokeLocked(userID, claims.ID, claims.ExpiresAt.Time)
	s.mu.Unlock()
	return session, nil
}

// RevokeUser invalidates every token held by userID and signs out all of their clients
func (s *Service) RevokeUser(ctx context.Context, userID model.PrincipalID) error {
	if _, err := s.storage.GetAccount(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	count := len(s.active[userID])
	for id, exp := range s.active[userID] {
		s.revokeLocked(userID, id, exp)
	}
	s.mu.Unlock()

	s.feed.Publish(userID, model.SessionEvent{Kind: model.EventSignedOut})
	s.logger.Info("user sessions revoked",
		slog.String("user_id", string(userID)),
		slog.Int("tokens", count))
	return nil
}

// NotifyUserUpdated tells every client of userID that their records changed
func (s *Service) NotifyUserUpdated(ctx context.Context, userID model.PrincipalID) error {
	account, err := s.storage.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	s.feed.Publish(userID, model.SessionEvent{
		Kind:      model.EventUserUpdated,
		Principal: account.Principal(),
	})
	return nil
}

// SetRole changes a user's profile role and notifies their clients.
// Existing tokens keep the old role claim until they are reissued.
func (s *Service) SetRole(ctx context.Context, userID model.PrincipalID, role model.Role) (*model.Profile, error) {
	profile, err := s.storage.UpdateProfileRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile role changed",
		slog.String("user_id", string(userID)),
		slog.String("role", string(role)))

	if err := s.NotifyUserUpdated(ctx, userID); err != nil {
		s.logger.Warn("failed to notify role change",
			slog.String("user_id", string(userID)),
			slog.Any("error", err))
	}
	return profile, nil
}

// CleanExpiredTokens forgets token bookkeeping past expiry (call periodically)
func (s *Service) CleanExpiredTokens() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	for userID, tokens := range s.active {
		for id, exp := range tokens {
			if now.After(exp) {
				delete(tokens, id)
			}
		}
		if len(tokens) == 0 {
			delete(s.active, userID)
		}
	}
}

func (s *Service) issue(principal *model.Principal) (*Session, error) {
	token, claims, err := s.tokens.Generate(principal)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	tokens, ok := s.active[principal.ID]
	if !ok {
		tokens = make(map[string]time.Time)
		s.active[principal.ID] = tokens
	}
	tokens[claims.ID] = claims.ExpiresAt.Time
	s.mu.Unlock()

	return &Session{
		Token:     token,
		Principal: principal,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// revokeLocked must be called with s.mu held
func (s *Service) revokeLocked(userID model.PrincipalID, tokenID string, exp time.Time) {
	s.revoked[tokenID] = exp
	if tokens, ok := s.active[userID]; ok {
		delete(tokens, tokenID)
		if len(tokens) == 0 {
			delete(s.active, userID)
		}
	}
}
