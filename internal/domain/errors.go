package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryInUse    = errors.New("category still has products")
	ErrProductNotFound  = errors.New("product not found")
	ErrSlugTaken        = errors.New("slug already taken")
	ErrSKUTaken         = errors.New("sku already taken")

	ErrInsufficientStock = errors.New("insufficient stock")

	ErrMediaNotFound = errors.New("media not found")
	ErrMediaInUse    = errors.New("media is attached to a product")
	ErrBlobNotFound  = errors.New("blob not found")

	ErrCouponNotFound       = errors.New("coupon not found")
	ErrCouponCodeTaken      = errors.New("coupon code already exists")
	ErrCouponInactive       = errors.New("coupon is not active")
	ErrCouponNotStarted     = errors.New("coupon is not valid yet")
	ErrCouponExpired        = errors.New("coupon has expired")
	ErrCouponUsageExhausted = errors.New("coupon usage limit reached")
	ErrCouponMinimumNotMet  = errors.New("order does not meet coupon minimum")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNumberTaken   = errors.New("order number already taken")
	ErrOrderStatusChanged = errors.New("order status changed concurrently")

	ErrReviewNotFound = errors.New("review not found")
	ErrReviewExists   = errors.New("review already submitted for this product")

	ErrPaymentUnavailable = errors.New("payment gateway unavailable")
)

// StockError reports which product could not cover a requested quantity.
// It matches ErrInsufficientStock with errors.Is.
type StockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
