package storage

import (
	"context"
	"io"
)

// ObjectStore is the listing-image storage surface. Handlers and the cascade
// service depend on this interface; production wires the MinIO client, tests
// wire a recording fake.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectName string) error
	PublicURL(objectName string) string
}
