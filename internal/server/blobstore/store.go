// Package blobstore persists document bytes under opaque keys.
//
// Keys are slash-separated relative paths generated by the server
// (documents/YYYY/MM/DD/<uuid>.<ext>); user input never reaches them.
package blobstore

import (
	"context"
	"io"
)

// Store is implemented by the local filesystem and S3 backends.
type Store interface {
	// Put writes size bytes from r under key. On failure nothing is left behind.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get opens the blob. Missing keys yield common.ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ctxReader fails reads once ctx is done so a cancelled request stops copying.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
