// Package filesink writes a run's datasets under a local output directory.
package filesink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/codec"
	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/hashicorp/go-multierror"
)

// Sink writes every artifact of a run, or none of them. Files are staged in a
// hidden directory under the root and renamed into place once all were
// written.
type Sink struct {
	dir     string
	encoder codec.Encoder
	logger  *slog.Logger
}

// New creates a Sink rooted at dir.
func New(dir string, encoder codec.Encoder, logger *slog.Logger) *Sink {
	return &Sink{dir: dir, encoder: encoder, logger: logger}
}

// Name identifies the sink in logs.
func (s *Sink) Name() string { return "file" }

// Load encodes the output and writes it under the root directory.
func (s *Sink) Load(ctx context.Context, out domain.Output) error {
	artifacts, err := s.encoder.Encode(out)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	staging, err := os.MkdirTemp(s.dir, ".staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(staging, filepath.FromSlash(a.Path)), a.Data); err != nil {
			return fmt.Errorf("stage %s: %w", a.Path, err)
		}
	}

	if err := s.promote(staging, artifacts); err != nil {
		return err
	}

	for _, a := range artifacts {
		s.logger.Info("output written",
			"path", filepath.Join(s.dir, filepath.FromSlash(a.Path)),
			"records", a.Records,
			"bytes", len(a.Data),
		)
	}
	return nil
}

// promote renames staged files into place. If a rename fails, files already
// promoted by this call are removed.
func (s *Sink) promote(staging string, artifacts []codec.Artifact) error {
	promoted := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		rel := filepath.FromSlash(a.Path)
		dst := filepath.Join(s.dir, rel)
		err := os.MkdirAll(filepath.Dir(dst), 0o755)
		if err == nil {
			err = os.Rename(filepath.Join(staging, rel), dst)
		}
		if err != nil {
			var result error = fmt.Errorf("move %s into place: %w", a.Path, err)
			for _, p := range promoted {
				if rmErr := os.Remove(p); rmErr != nil {
					result = multierror.Append(result, fmt.Errorf("roll back %s: %w", p, rmErr))
				}
			}
			return result
		}
		promoted = append(promoted, dst)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
