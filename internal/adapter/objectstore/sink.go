package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/codec"
	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
)

// Sink uploads a run's artifacts under a bucket prefix, using the same
// relative layout as the local file sink.
type Sink struct {
	store   Store
	prefix  Location
	encoder codec.Encoder
	logger  *slog.Logger
}

// NewSink creates a Sink that uploads under prefixURI.
func NewSink(store Store, prefixURI string, encoder codec.Encoder, logger *slog.Logger) (*Sink, error) {
	prefix, err := ParseURI(prefixURI)
	if err != nil {
		return nil, err
	}
	return &Sink{store: store, prefix: prefix, encoder: encoder, logger: logger}, nil
}

// Name identifies the sink in logs.
func (s *Sink) Name() string { return "objectstore" }

// Load encodes the output and uploads every artifact.
func (s *Sink) Load(ctx context.Context, out domain.Output) error {
	artifacts, err := s.encoder.Encode(out)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		loc := s.prefix.Join(a.Path)
		if err := s.store.Upload(ctx, loc, bytes.NewReader(a.Data), a.ContentType); err != nil {
			return fmt.Errorf("upload %s: %w", a.Path, err)
		}
		s.logger.Info("output uploaded", "uri", loc.String(), "records", a.Records, "bytes", len(a.Data))
	}
	return nil
}
