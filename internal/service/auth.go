// Package service holds the application logic behind the API handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aloudapp/aloud-server/internal/auth"
	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/id"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/store"
	"github.com/aloudapp/aloud-server/internal/validation"
)

// AuthService manages the single owner account: first-run setup, login,
// refresh rotation, and logout.
type AuthService struct {
	store    *store.Store
	tokens   *auth.TokenService
	validate *validation.Validator
	log      *logger.Logger
}

// NewAuthService creates the authentication service.
func NewAuthService(st *store.Store, tokens *auth.TokenService, log *logger.Logger) *AuthService {
	return &AuthService{
		store:    st,
		tokens:   tokens,
		validate: validation.New(),
		log:      log,
	}
}

// SetupRequest creates the owner account on a fresh server.
type SetupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// LoginRequest carries owner credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse carries a fresh token pair.
type AuthResponse struct {
	Username     string    `json:"username"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NeedsSetup reports whether no owner account exists yet.
func (s *AuthService) NeedsSetup(ctx context.Context) (bool, error) {
	has, err := s.store.HasAccount(ctx)
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return !has, nil
}

// Setup creates the owner account and signs it in. It works exactly once;
// afterwards the server reports itself as already configured.
func (s *AuthService) Setup(ctx context.Context, req SetupRequest) (*AuthResponse, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	accountID, err := id.Generate("acct")
	if err != nil {
		return nil, fmt.Errorf("generate account ID: %w", err)
	}

	now := time.Now()
	account := &domain.Account{
		ID:           accountID,
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.log.Info("first-run setup complete", "username", account.Username)
	return s.issueTokens(ctx, account)
}

// Login verifies credentials and issues a token pair. Wrong username and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	account, err := s.store.GetAccount(ctx)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, apperrors.InvalidCredentials("invalid username or password")
		}
		return nil, err
	}
	if account.Username != req.Username {
		return nil, apperrors.InvalidCredentials("invalid username or password")
	}

	ok, err := auth.VerifyPassword(account.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.log.Warn("failed login attempt", "username", req.Username)
		return nil, apperrors.InvalidCredentials("invalid username or password")
	}

	s.log.Info("owner logged in", "username", account.Username)
	return s.issueTokens(ctx, account)
}

// Refresh rotates a refresh token: the old one is invalidated and a fresh
// pair issued in its place.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (*AuthResponse, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	hash := auth.HashRefreshToken(req.RefreshToken)
	token, err := s.store.GetRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, apperrors.Unauthorized("invalid refresh token")
		}
		return nil, err
	}

	if token.Expired(time.Now()) {
		_ = s.store.DeleteRefreshToken(ctx, hash)
		return nil, apperrors.TokenExpired("refresh token expired")
	}

	account, err := s.store.GetAccount(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteRefreshToken(ctx, hash); err != nil && !errors.Is(err, store.ErrTokenNotFound) {
		return nil, err
	}
	return s.issueTokens(ctx, account)
}

// Logout invalidates a refresh token. Unknown tokens are already logged out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.store.DeleteRefreshToken(ctx, auth.HashRefreshToken(refreshToken))
	if err != nil && !errors.Is(err, store.ErrTokenNotFound) {
		return err
	}
	return nil
}

// VerifyAccess checks an access token and returns its claims.
func (s *AuthService) VerifyAccess(token string) (*auth.AccessClaims, error) {
	return s.tokens.VerifyAccessToken(token)
}

func (s *AuthService) issueTokens(ctx context.Context, account *domain.Account) (*AuthResponse, error) {
	access, err := s.tokens.GenerateAccessToken(account)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refresh, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := time.Now()
	record := &domain.RefreshToken{
		Hash:      auth.HashRefreshToken(refresh),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.tokens.RefreshTokenDuration()),
		CreatedAt: now,
	}
	if err := s.store.SaveRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &AuthResponse{
		Username:     account.Username,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.tokens.AccessTokenDuration()),
	}, nil
}
