package objectstore

import (
	"context"
	"fmt"
	"io"
)

// Store moves whole objects in and out of a bucket.
type Store interface {
	Upload(ctx context.Context, loc Location, data io.Reader, contentType string) error
	Download(ctx context.Context, loc Location) (io.ReadCloser, error)
}

// Mux dispatches to a Store by URI scheme.
type Mux map[string]Store

// Upload implements Store.
func (m Mux) Upload(ctx context.Context, loc Location, data io.Reader, contentType string) error {
	s, err := m.store(loc)
	if err != nil {
		return err
	}
	return s.Upload(ctx, loc, data, contentType)
}

// Download implements Store.
func (m Mux) Download(ctx context.Context, loc Location) (io.ReadCloser, error) {
	s, err := m.store(loc)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, loc)
}

func (m Mux) store(loc Location) (Store, error) {
	s, ok := m[loc.Scheme]
	if !ok || s == nil {
		return nil, fmt.Errorf("no object store configured for scheme %q", loc.Scheme)
	}
	return s, nil
}
