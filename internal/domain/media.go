package domain

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

type Media struct {
	ID          uuid.UUID `json:"id"`
	Key         string    `json:"-"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Alt         string    `json:"alt,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type MediaRepository interface {
	Create(ctx context.Context, m *Media) error
	GetByID(ctx context.Context, id uuid.UUID) (*Media, error)
	List(ctx context.Context, p PageRequest) ([]Media, int, error)
	// Delete fails with ErrMediaInUse while a product references the media.
	Delete(ctx context.Context, id uuid.UUID) error
	// Missing returns the ids that do not exist.
	Missing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	ListOrphans(ctx context.Context, createdBefore time.Time, limit int) ([]Media, error)
}

// BlobStore holds media bytes under opaque keys. Get returns ErrBlobNotFound
// for unknown keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
