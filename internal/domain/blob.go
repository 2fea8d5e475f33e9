package domain

import (
	"context"
	"io"
)

// BlobWriter stores report artifacts under a slash-separated key.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// BlobReader fetches inputs such as the market lookup. Get wraps ErrNotFound
// when key does not exist.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}
