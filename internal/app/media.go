package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const purgeBatchSize = 100

var mediaExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type MediaService struct {
	media    domain.MediaRepository
	blobs    domain.BlobStore
	clock    clockwork.Clock
	maxBytes int64
}

func NewMediaService(media domain.MediaRepository, blobs domain.BlobStore, clock clockwork.Clock, maxBytes int64) *MediaService {
	return &MediaService{media: media, blobs: blobs, clock: clock, maxBytes: maxBytes}
}

// Upload stores an image. The blob is written before the row so a listed
// media item always has bytes behind it.
func (s *MediaService) Upload(ctx context.Context, filename, alt string, r io.Reader) (*domain.Media, error) {
	alt = strings.TrimSpace(alt)
	if err := requireLength("alt", alt, 0, 200); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperrors.ValidationError("file is empty").WithField("field", "file")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apperrors.ValidationError("file is too large").
			WithField("field", "file").
			WithField("max_bytes", s.maxBytes)
	}

	contentType := http.DetectContentType(data)
	ext, ok := mediaExtensions[contentType]
	if !ok {
		return nil, apperrors.ValidationError("only jpeg, png, webp and gif images are allowed").
			WithField("field", "file").
			WithField("content_type", contentType)
	}

	id := uuid.New()
	now := s.clock.Now().UTC()
	m := &domain.Media{
		ID:          id,
		Key:         fmt.Sprintf("media/%04d/%02d/%s%s", now.Year(), int(now.Month()), id, ext),
		Filename:    cleanFilename(filename, ext),
		ContentType: contentType,
		Size:        int64(len(data)),
		Alt:         alt,
	}

	if err := s.blobs.Put(ctx, m.Key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to store media blob: %w", err)
	}
	if err := s.media.Create(ctx, m); err != nil {
		if delErr := s.blobs.Delete(ctx, m.Key); delErr != nil {
			slog.WarnContext(ctx, "Failed to remove blob after insert error", "key", m.Key, "error", delErr)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "Media uploaded", "media_id", m.ID.String(), "content_type", contentType, "size", m.Size)
	return m, nil
}

func cleanFilename(name, ext string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "upload" + ext
	}
	if r := []rune(base); len(r) > 200 {
		base = string(r[:200])
	}
	return base
}

func (s *MediaService) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Media], error) {
	page = page.Normalize()
	items, total, err := s.media.List(ctx, page)
	if err != nil {
		return domain.Page[domain.Media]{}, err
	}
	return domain.NewPage(items, total, page), nil
}

func (s *MediaService) Get(ctx context.Context, id uuid.UUID) (*domain.Media, error) {
	return s.media.GetByID(ctx, id)
}

// Open returns the media row and a reader over its bytes. The caller closes
// the reader.
func (s *MediaService) Open(ctx context.Context, id uuid.UUID) (*domain.Media, io.ReadCloser, error) {
	m, err := s.media.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, m.Key)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			slog.WarnContext(ctx, "Media row has no blob", "media_id", id.String(), "key", m.Key)
			return nil, nil, domain.ErrMediaNotFound
		}
		return nil, nil, err
	}
	return m, rc, nil
}

func (s *MediaService) Delete(ctx context.Context, id uuid.UUID) error {
	m, err := s.media.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.media.Delete(ctx, id); err != nil {
		return err
	}
	s.deleteBlob(ctx, m)
	return nil
}

func (s *MediaService) deleteBlob(ctx context.Context, m *domain.Media) {
	if err := s.blobs.Delete(ctx, m.Key); err != nil {
		slog.WarnContext(ctx, "Failed to delete media blob", "media_id", m.ID.String(), "key", m.Key, "error", err)
	}
}

// PurgeOrphans deletes media that no product references and that is older
// than olderThan. It returns the number of items removed.
func (s *MediaService) PurgeOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	purged := 0

	for {
		batch, err := s.media.ListOrphans(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return purged, err
		}

		progressed := 0
		for i := range batch {
			m := &batch[i]
			if err := s.media.Delete(ctx, m.ID); err != nil {
				if errors.Is(err, domain.ErrMediaInUse) || errors.Is(err, domain.ErrMediaNotFound) {
					continue
				}
				return purged, err
			}
			s.deleteBlob(ctx, m)
			purged++
			progressed++
		}

		if len(batch) < purgeBatchSize || progressed == 0 {
			return purged, nil
		}
	}
}
