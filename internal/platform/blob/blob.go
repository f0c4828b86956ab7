// Package blob stores receipt images. Document payloads only carry the
// object path; contents are never interpreted by the core.
package blob

import (
	"context"
	"time"
)

// Store abstracts the object store used for receipt images.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	SignedURL(path string, ttl time.Duration) (string, error)
}
