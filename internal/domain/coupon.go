package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Coupon amounts are minor units. For percentage coupons Value is whole
// percent. A zero UsageLimit or MaxDiscount means unlimited.
type Coupon struct {
	ID             uuid.UUID    `json:"id"`
	Code           string       `json:"code"`
	Description    string       `json:"description,omitempty"`
	Type           DiscountType `json:"type"`
	Value          int64        `json:"value"`
	MinOrderAmount int64        `json:"min_order_amount"`
	MaxDiscount    int64        `json:"max_discount"`
	UsageLimit     int          `json:"usage_limit"`
	UsedCount      int          `json:"used_count"`
	StartsAt       *time.Time   `json:"starts_at,omitempty"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	Active         bool         `json:"active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type CouponRepository interface {
	List(ctx context.Context, p PageRequest) ([]Coupon, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id uuid.UUID) error
}
