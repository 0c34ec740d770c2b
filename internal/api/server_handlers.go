package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// ServerInfoResponse describes the server to clients before they log in, so
// apps can decide whether to show the setup screen or the login screen.
type ServerInfoResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Engine        string `json:"engine" doc:"Active narration engine"`
	AuthEnabled   bool   `json:"auth_enabled"`
	SetupRequired bool   `json:"setup_required"`
	Books         int    `json:"books"`
}

// ServerInfoOutput wraps the server info response.
type ServerInfoOutput struct {
	Body ServerInfoResponse
}

func (s *Server) registerServerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "server-info",
		Method:      http.MethodGet,
		Path:        "/api/v1/server",
		Summary:     "Server info",
		Description: "Public server identity and state, used by clients for onboarding.",
		Tags:        []string{"Server"},
	}, s.handleServerInfo)
}

func (s *Server) handleServerInfo(ctx context.Context, _ *struct{}) (*ServerInfoOutput, error) {
	needsSetup := false
	if s.cfg.Auth.Enabled {
		var err error
		needsSetup, err = s.services.Auth.NeedsSetup(ctx)
		if err != nil {
			return nil, err
		}
	}

	count, err := s.services.Books.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &ServerInfoOutput{Body: ServerInfoResponse{
		Name:          s.cfg.Server.Name,
		Version:       s.version,
		Engine:        s.playback.EngineName(),
		AuthEnabled:   s.cfg.Auth.Enabled,
		SetupRequired: needsSetup,
		Books:         count,
	}}, nil
}
