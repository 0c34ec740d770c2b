package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aloudapp/aloud-server/internal/service"
)

// SetupInput creates the owner account on a fresh server.
type SetupInput struct {
	Body service.SetupRequest
}

// LoginInput carries owner credentials.
type LoginInput struct {
	Body service.LoginRequest
}

// RefreshInput exchanges a refresh token for a new pair.
type RefreshInput struct {
	Body service.RefreshRequest
}

// LogoutInput revokes a refresh token.
type LogoutInput struct {
	Body service.RefreshRequest
}

// AuthOutput is the response containing a token pair.
type AuthOutput struct {
	Body service.AuthResponse
}

// MessageResponse is a plain confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// MessageOutput wraps a confirmation message.
type MessageOutput struct {
	Body MessageResponse
}

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "auth-setup",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/setup",
		Summary:     "First-run setup",
		Description: "Creates the owner account. Works exactly once; later calls return a conflict.",
		Tags:        []string{"Authentication"},
	}, s.handleSetup)

	huma.Register(s.api, huma.Operation{
		OperationID: "auth-login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Log in",
		Tags:        []string{"Authentication"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "auth-refresh",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/refresh",
		Summary:     "Refresh tokens",
		Description: "Rotates the refresh token and issues a new access token.",
		Tags:        []string{"Authentication"},
	}, s.handleRefresh)

	huma.Register(s.api, huma.Operation{
		OperationID: "auth-logout",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout",
		Summary:     "Log out",
		Description: "Revokes the refresh token. The access token simply expires.",
		Tags:        []string{"Authentication"},
	}, s.handleLogout)
}

func (s *Server) handleSetup(ctx context.Context, input *SetupInput) (*AuthOutput, error) {
	resp, err := s.services.Auth.Setup(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: *resp}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	resp, err := s.services.Auth.Login(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: *resp}, nil
}

func (s *Server) handleRefresh(ctx context.Context, input *RefreshInput) (*AuthOutput, error) {
	resp, err := s.services.Auth.Refresh(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: *resp}, nil
}

func (s *Server) handleLogout(ctx context.Context, input *LogoutInput) (*MessageOutput, error) {
	if err := s.services.Auth.Logout(ctx, input.Body.RefreshToken); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "logged out"}}, nil
}
