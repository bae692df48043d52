package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"mei-diagnostic/internal/domain"
)

// FileStrategy replays recorded webhook responses from a directory, one
// <cnpj>.json file per entity. It is used for offline runs and demos.
type FileStrategy struct {
	dir string
}

// NewFileStrategy creates a strategy reading from dir.
func NewFileStrategy(dir string) *FileStrategy {
	return &FileStrategy{dir: dir}
}

// Name identifies the strategy in narration and logs.
func (s *FileStrategy) Name() string { return "file" }

// Attempt reads <dir>/<cnpj>.json and reports it as a 200 response.
func (s *FileStrategy) Attempt(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, req.EntityID+".json")
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recorded response %s: %w", path, err)
	}
	return &domain.UpstreamResponse{Status: http.StatusOK, Body: body}, nil
}
