package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports that no payload exists under the requested key.
var ErrNotFound = errors.New("payload not found")

// PayloadStore keeps the original uploaded file bytes so that later sign
// and verify steps can resend them. Registry records hold only the key;
// a missing payload is an expected condition after a restart with an
// empty store.
type PayloadStore interface {
	Put(ctx context.Context, key, filename, contentType string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
