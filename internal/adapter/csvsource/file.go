package csvsource

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
)

// FileSource reads observations from a local CSV export.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a source for the CSV file at path.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

// Extract parses the whole file.
func (s *FileSource) Extract(ctx context.Context) ([]domain.RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	obs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.logger.Info("source file read", "path", s.path, "observations", len(obs))
	return obs, nil
}
