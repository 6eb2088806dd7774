// Package blobstore keeps media bytes on local disk or in an S3 bucket.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/config"
	"github.com/hashmap-kz/storecrypt/pkg/clients"
	st "github.com/hashmap-kz/storecrypt/pkg/storage"
)

// Store adapts a storecrypt backend to domain.BlobStore.
type Store struct {
	backend st.Storage
}

var _ domain.BlobStore = (*Store)(nil)

// New picks the backend named by cfg.MediaBackend.
func New(cfg *config.Config) (*Store, error) {
	switch cfg.MediaBackend {
	case config.MediaBackendLocal:
		return NewLocal(cfg.MediaLocalDir)
	case config.MediaBackendS3:
		client, err := clients.NewS3Client(&clients.S3Config{
			EndpointURL:     cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			UsePathStyle:    cfg.S3PathStyle,
			DisableSSL:      cfg.S3DisableSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		slog.Info("Media storage: s3", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
		return &Store{backend: st.NewS3Storage(client.Client(), cfg.S3Bucket, "")}, nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.MediaBackend)
	}
}

func NewLocal(dir string) (*Store, error) {
	backend, err := st.NewLocal(&st.LocalStorageOpts{
		BaseDir:      dir,
		FsyncOnWrite: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local media storage: %w", err)
	}
	slog.Info("Media storage: local", "dir", dir)
	return &Store{backend: backend}, nil
}

// cleanKey rejects keys that could escape the storage root.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(key, "/"))
	if key == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return cleaned, nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, k, r); err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	ok, err := s.backend.Exists(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	rc, err := s.backend.Get(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return rc, nil
}

// Delete is a no-op for keys that are already gone.
func (s *Store) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	ok, err := s.backend.Exists(ctx, k)
	if err != nil {
		return fmt.Errorf("failed to stat blob: %w", err)
	}
	if !ok {
		return nil
	}
	if err := s.backend.Delete(ctx, k); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
