package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore implements Store on Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a GCS client. An empty credentialsFile uses application
// default credentials.
func NewGCSStore(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*GCSStore, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Upload streams data into the object, replacing it if present.
func (s *GCSStore) Upload(ctx context.Context, loc Location, data io.Reader, contentType string) error {
	w := s.client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %s: %w", loc, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs object %s: %w", loc, err)
	}
	return nil
}

// Download opens the object for reading. The caller closes it.
func (s *GCSStore) Download(ctx context.Context, loc Location) (io.ReadCloser, error) {
	r, err := s.client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object %s: %w", loc, err)
	}
	return r, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
