package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
)

type ReviewInput struct {
	Rating int    `json:"rating"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type ReviewService struct {
	reviews  domain.ReviewRepository
	products domain.ProductRepository
	orders   domain.OrderRepository
	users    domain.UserRepository
	cache    domain.ProductCache
}

func NewReviewService(reviews domain.ReviewRepository, products domain.ProductRepository, orders domain.OrderRepository, users domain.UserRepository, cache domain.ProductCache) *ReviewService {
	return &ReviewService{reviews: reviews, products: products, orders: orders, users: users, cache: cache}
}

// Submit records a review awaiting moderation. A user reviews a product once.
func (s *ReviewService) Submit(ctx context.Context, userID uuid.UUID, productSlug string, in ReviewInput) (*domain.Review, error) {
	title := strings.TrimSpace(in.Title)
	body := strings.TrimSpace(in.Body)
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperrors.ValidationError("rating must be between 1 and 5").WithField("field", "rating")
	}
	if err := requireLength("title", title, 0, 120); err != nil {
		return nil, err
	}
	if err := requireLength("body", body, 1, 2000); err != nil {
		return nil, err
	}

	p, err := s.activeProduct(ctx, productSlug)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	verified, err := s.orders.HasDeliveredProduct(ctx, userID, p.ID)
	if err != nil {
		return nil, err
	}

	rv := &domain.Review{
		ProductID:  p.ID,
		UserID:     userID,
		AuthorName: u.Name,
		Rating:     in.Rating,
		Title:      title,
		Body:       body,
		Status:     domain.ReviewPending,
		Verified:   verified,
	}
	if err := s.reviews.Create(ctx, rv); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Review submitted", "review_id", rv.ID.String(), "product", p.Slug, "verified", verified)
	return rv, nil
}

// ListForProduct returns the approved reviews of an active product.
func (s *ReviewService) ListForProduct(ctx context.Context, productSlug string, page domain.PageRequest) (domain.Page[domain.Review], error) {
	p, err := s.activeProduct(ctx, productSlug)
	if err != nil {
		return domain.Page[domain.Review]{}, err
	}
	return s.list(ctx, domain.ReviewFilter{Status: domain.ReviewApproved, ProductID: &p.ID, PageRequest: page})
}

func (s *ReviewService) List(ctx context.Context, status domain.ReviewStatus, page domain.PageRequest) (domain.Page[domain.Review], error) {
	if status != "" && !status.Valid() {
		return domain.Page[domain.Review]{}, apperrors.ValidationError("unknown review status").WithField("field", "status")
	}
	return s.list(ctx, domain.ReviewFilter{Status: status, PageRequest: page})
}

func (s *ReviewService) list(ctx context.Context, f domain.ReviewFilter) (domain.Page[domain.Review], error) {
	f.PageRequest = f.PageRequest.Normalize()
	items, total, err := s.reviews.List(ctx, f)
	if err != nil {
		return domain.Page[domain.Review]{}, err
	}
	return domain.NewPage(items, total, f.PageRequest), nil
}

// Moderate approves or rejects a review. The product rating is recomputed
// by the repository in the same transaction.
func (s *ReviewService) Moderate(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error) {
	if status != domain.ReviewApproved && status != domain.ReviewRejected {
		return nil, apperrors.ValidationError("status must be approved or rejected").WithField("field", "status")
	}
	rv, err := s.reviews.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.invalidateProduct(ctx, rv.ProductID)
	slog.InfoContext(ctx, "Review moderated", "review_id", id.String(), "status", status)
	return rv, nil
}

func (s *ReviewService) Delete(ctx context.Context, id uuid.UUID) error {
	rv, err := s.reviews.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.invalidateProduct(ctx, rv.ProductID)
	return nil
}

func (s *ReviewService) activeProduct(ctx context.Context, productSlug string) (*domain.Product, error) {
	p, err := s.products.GetBySlug(ctx, strings.TrimSpace(productSlug))
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *ReviewService) invalidateProduct(ctx context.Context, productID uuid.UUID) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load product for cache invalidation", "product_id", productID.String(), "error", err)
		return
	}
	if err := s.cache.Invalidate(ctx, p.Slug); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate product cache", "slug", p.Slug, "error", err)
	}
}
