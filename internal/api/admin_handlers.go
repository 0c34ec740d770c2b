package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aloudapp/aloud-server/internal/http/response"
	"github.com/aloudapp/aloud-server/internal/library"
	"github.com/aloudapp/aloud-server/internal/util"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "admin-backup",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/backup",
		Summary:     "Download a backup",
		Description: "Streams a snapshot of the database: catalog, account, progress, and preferences. Covers and book files are not included; a scan rebuilds them.",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleBackup)

	// Restore reads the raw backup stream, so it skips huma.
	s.router.Post("/api/v1/admin/restore", s.handleRestore)
}

func (s *Server) handleBackup(ctx context.Context, _ *struct{}) (*huma.StreamResponse, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	// Name backups after the server so households running several can tell
	// the files apart.
	name := util.Slugify(s.cfg.Server.Name)
	if name == "" {
		name = "aloud"
	}
	filename := fmt.Sprintf("%s-%s.backup", name, time.Now().Format("20060102-150405"))

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", "application/octet-stream")
			hctx.SetHeader("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
			if _, err := s.store.Backup(hctx.BodyWriter()); err != nil {
				// Headers are gone; all we can do is log and cut the stream.
				s.log.Error("backup stream failed", "error", err)
			}
		},
	}, nil
}

// handleRestore loads a backup stream into the database, then rescans the
// library in the background so covers and the search index catch up with the
// restored catalog.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if !s.rawRequireOwner(w, r) {
		return
	}

	if err := s.store.Restore(r.Body); err != nil {
		s.log.Error("restore failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "restore failed: "+err.Error(), s.log.Logger)
		return
	}

	s.log.Info("database restored from backup")

	if s.scanner != nil && s.scanner.Root() != "" {
		go func() {
			if _, err := s.scanner.Scan(context.Background(), library.ScanOptions{Force: false}); err != nil {
				s.log.Warn("post-restore scan failed", "error", err)
			}
		}()
	}

	response.Success(w, MessageResponse{Message: "restore complete"}, s.log.Logger)
}
