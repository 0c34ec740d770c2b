package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/library"
)

// ScanInput triggers a library scan.
type ScanInput struct {
	Force bool `query:"force" doc:"Re-extract every book even when unchanged"`
}

// ScanFileError reports one file that failed during a scan.
type ScanFileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ScanResponse reports what a scan run did.
type ScanResponse struct {
	ScanID      string          `json:"scan_id"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Added       int             `json:"added"`
	Updated     int             `json:"updated"`
	Removed     int             `json:"removed"`
	Unchanged   int             `json:"unchanged"`
	Errors      []ScanFileError `json:"errors,omitempty"`
}

// ScanOutput wraps a scan result.
type ScanOutput struct {
	Body ScanResponse
}

// LibraryInfoResponse describes the configured library.
type LibraryInfoResponse struct {
	Path          string   `json:"path"`
	Watching      bool     `json:"watching"`
	CalibreImport bool     `json:"calibre_import"`
	Formats       []string `json:"formats" doc:"Supported file extensions"`
}

// LibraryInfoOutput wraps the library description.
type LibraryInfoOutput struct {
	Body LibraryInfoResponse
}

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "library-info",
		Method:      http.MethodGet,
		Path:        "/api/v1/library",
		Summary:     "Library settings",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleLibraryInfo)

	huma.Register(s.api, huma.Operation{
		OperationID: "library-scan",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/scan",
		Summary:     "Scan the library",
		Description: "Walks the library folder and syncs the catalog. Runs synchronously and returns the result.",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleScanLibrary)
}

func (s *Server) handleLibraryInfo(ctx context.Context, _ *struct{}) (*LibraryInfoOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	return &LibraryInfoOutput{Body: LibraryInfoResponse{
		Path:          s.cfg.Library.Path,
		Watching:      s.cfg.Library.Watch,
		CalibreImport: s.cfg.Library.CalibreImport,
		Formats:       s.services.Books.Formats(),
	}}, nil
}

func (s *Server) handleScanLibrary(ctx context.Context, input *ScanInput) (*ScanOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	if s.scanner == nil || s.scanner.Root() == "" {
		return nil, apperrors.Validation("no library path is configured")
	}

	result, err := s.scanner.Scan(ctx, library.ScanOptions{Force: input.Force})
	if err != nil {
		return nil, err
	}

	resp := ScanResponse{
		ScanID:      result.ScanID,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Added:       result.Added,
		Updated:     result.Updated,
		Removed:     result.Removed,
		Unchanged:   result.Unchanged,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, ScanFileError{Path: e.Path, Error: e.Err.Error()})
	}

	return &ScanOutput{Body: resp}, nil
}
