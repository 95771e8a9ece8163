// objectstore.go: durable object storage for migrated images
package migration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/placewise/photocache/internal/errors"
)

// ObjectStore persists fetched image bytes under a key and returns the
// public URL the stored object is served from. The backing store is an
// opaque upload endpoint; implementations stay thin.
type ObjectStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// HTTPObjectStore uploads objects to an HTTP storage endpoint.
type HTTPObjectStore struct {
	client    *http.Client
	uploadURL string
	publicURL string
}

// NewHTTPObjectStore creates an object store uploading to uploadURL and
// serving from publicURL.
func NewHTTPObjectStore(uploadURL, publicURL string) *HTTPObjectStore {
	return &HTTPObjectStore{
		client:    &http.Client{Timeout: 30 * time.Second},
		uploadURL: uploadURL,
		publicURL: publicURL,
	}
}

// Store uploads the object and returns its public URL.
func (s *HTTPObjectStore) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	target := s.uploadURL + "/" + key

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return "", errors.New(err).
			Component("migration").
			Category(errors.CategoryObjectStore).
			Context("key", key).
			Build()
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.New(err).
			Component("migration").
			Category(errors.CategoryObjectStore).
			NetworkContext(target, s.client.Timeout).
			Context("key", key).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Newf("object upload failed with status %d", resp.StatusCode).
			Component("migration").
			Category(errors.CategoryObjectStore).
			Context("key", key).
			Context("status_code", resp.StatusCode).
			Build()
	}

	return fmt.Sprintf("%s/%s", s.publicURL, key), nil
}
