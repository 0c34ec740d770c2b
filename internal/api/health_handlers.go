package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// ComponentHealth reports the state of one dependency.
type ComponentHealth struct {
	Status  string `json:"status" enum:"healthy,degraded,unhealthy" doc:"Component status"`
	Latency string `json:"latency,omitempty" doc:"Check duration"`
	Message string `json:"message,omitempty" doc:"Detail when not healthy"`
}

// HealthResponse aggregates component states into one server status.
type HealthResponse struct {
	Status     string                     `json:"status" enum:"healthy,degraded,unhealthy"`
	Version    string                     `json:"version"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthOutput wraps the health response.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Server health",
		Description: "Checks the database, the search index, and the narration engine.",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{}

	start := time.Now()
	if _, err := s.store.CountBooks(ctx); err != nil {
		components["database"] = ComponentHealth{
			Status:  "unhealthy",
			Latency: time.Since(start).String(),
			Message: err.Error(),
		}
	} else {
		components["database"] = ComponentHealth{
			Status:  "healthy",
			Latency: time.Since(start).String(),
		}
	}

	start = time.Now()
	if _, err := s.index.DocumentCount(); err != nil {
		components["search"] = ComponentHealth{
			Status:  "degraded",
			Latency: time.Since(start).String(),
			Message: err.Error(),
		}
	} else {
		components["search"] = ComponentHealth{
			Status:  "healthy",
			Latency: time.Since(start).String(),
		}
	}

	engine := s.playback.EngineName()
	if engine == "disabled" {
		components["narration"] = ComponentHealth{
			Status:  "degraded",
			Message: "narration engine is off",
		}
	} else {
		components["narration"] = ComponentHealth{
			Status:  "healthy",
			Message: engine,
		}
	}

	components["events"] = ComponentHealth{
		Status:  "healthy",
		Message: fmt.Sprintf("%d connected clients", s.events.ClientCount()),
	}

	status := "healthy"
	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			status = "unhealthy"
		case "degraded":
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	return &HealthOutput{Body: HealthResponse{
		Status:     status,
		Version:    s.version,
		Components: components,
	}}, nil
}
