package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// VoicesResponse lists the narrator catalog with the saved preference.
type VoicesResponse struct {
	Engine  string         `json:"engine"`
	Voices  []domain.Voice `json:"voices"`
	Current string         `json:"current,omitempty" doc:"Persisted voice ID, empty when using the engine default"`
	Rate    float64        `json:"rate"`
}

// VoicesOutput wraps the voice catalog.
type VoicesOutput struct {
	Body VoicesResponse
}

func (s *Server) registerVoiceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "voices-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/voices",
		Summary:     "List voices",
		Description: "The narrator catalog. Engines fill it shortly after startup; clients may poll until it is non-empty.",
		Tags:        []string{"Voices"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListVoices)
}

func (s *Server) handleListVoices(ctx context.Context, _ *struct{}) (*VoicesOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	voices, err := s.playback.Voices(ctx)
	if err != nil {
		return nil, err
	}
	if voices == nil {
		voices = []domain.Voice{}
	}

	pref := s.playback.Preference()
	return &VoicesOutput{Body: VoicesResponse{
		Engine:  s.playback.EngineName(),
		Voices:  voices,
		Current: pref.VoiceID,
		Rate:    pref.Rate,
	}}, nil
}
