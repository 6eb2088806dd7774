package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	return s == ReviewPending || s == ReviewApproved || s == ReviewRejected
}

type Review struct {
	ID         uuid.UUID    `json:"id"`
	ProductID  uuid.UUID    `json:"product_id"`
	UserID     uuid.UUID    `json:"user_id"`
	AuthorName string       `json:"author_name"`
	Rating     int          `json:"rating"`
	Title      string       `json:"title,omitempty"`
	Body       string       `json:"body"`
	Status     ReviewStatus `json:"status"`
	Verified   bool         `json:"verified"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

type ReviewFilter struct {
	Status    ReviewStatus
	ProductID *uuid.UUID
	PageRequest
}

type ReviewRepository interface {
	// Create fails with ErrReviewExists for a second review of the same product by the same user.
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	List(ctx context.Context, f ReviewFilter) ([]Review, int, error)
	// SetStatus and Delete recompute the product rating from approved reviews.
	SetStatus(ctx context.Context, id uuid.UUID, status ReviewStatus) (*Review, error)
	Delete(ctx context.Context, id uuid.UUID) (*Review, error)
}
