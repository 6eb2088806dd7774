package app

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

type CouponInput struct {
	Code           string              `json:"code"`
	Description    string              `json:"description"`
	Type           domain.DiscountType `json:"type"`
	Value          int64               `json:"value"`
	MinOrderAmount int64               `json:"min_order_amount"`
	MaxDiscount    int64               `json:"max_discount"`
	UsageLimit     int                 `json:"usage_limit"`
	StartsAt       *time.Time          `json:"starts_at"`
	ExpiresAt      *time.Time          `json:"expires_at"`
	Active         bool                `json:"active"`
}

type CouponService struct {
	coupons domain.CouponRepository
	clock   clockwork.Clock
	metrics *metrics.StoreMetrics
}

func NewCouponService(coupons domain.CouponRepository, clock clockwork.Clock, m *metrics.StoreMetrics) *CouponService {
	return &CouponService{coupons: coupons, clock: clock, metrics: m}
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *CouponService) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Coupon], error) {
	page = page.Normalize()
	items, total, err := s.coupons.List(ctx, page)
	if err != nil {
		return domain.Page[domain.Coupon]{}, err
	}
	return domain.NewPage(items, total, page), nil
}

func (s *CouponService) Get(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return s.coupons.GetByID(ctx, id)
}

func (s *CouponService) Create(ctx context.Context, in CouponInput) (*domain.Coupon, error) {
	c := &domain.Coupon{}
	if err := applyCoupon(c, in); err != nil {
		return nil, err
	}
	if err := s.coupons.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the coupon's settings. The usage counter is kept.
func (s *CouponService) Update(ctx context.Context, id uuid.UUID, in CouponInput) (*domain.Coupon, error) {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyCoupon(c, in); err != nil {
		return nil, err
	}
	if err := s.coupons.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CouponService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.coupons.Delete(ctx, id)
}

func applyCoupon(c *domain.Coupon, in CouponInput) error {
	code := normalizeCouponCode(in.Code)
	if !couponCodePattern.MatchString(code) {
		return apperrors.ValidationError("code must be 3 to 32 characters of A-Z, 0-9, _ or -").WithField("field", "code")
	}

	switch in.Type {
	case domain.DiscountPercentage:
		if in.Value < 1 || in.Value > 100 {
			return apperrors.ValidationError("percentage value must be between 1 and 100").WithField("field", "value")
		}
	case domain.DiscountFixed:
		if in.Value <= 0 {
			return apperrors.ValidationError("fixed value must be positive").WithField("field", "value")
		}
	default:
		return apperrors.ValidationError("type must be percentage or fixed").WithField("field", "type")
	}

	if in.MinOrderAmount < 0 || in.MaxDiscount < 0 {
		return apperrors.ValidationError("amounts must not be negative")
	}
	if in.UsageLimit < 0 {
		return apperrors.ValidationError("usage_limit must not be negative").WithField("field", "usage_limit")
	}
	if in.StartsAt != nil && in.ExpiresAt != nil && !in.ExpiresAt.After(*in.StartsAt) {
		return apperrors.ValidationError("expires_at must be after starts_at").WithField("field", "expires_at")
	}
	if err := requireLength("description", in.Description, 0, 500); err != nil {
		return err
	}

	c.Code = code
	c.Description = strings.TrimSpace(in.Description)
	c.Type = in.Type
	c.Value = in.Value
	c.MinOrderAmount = in.MinOrderAmount
	c.MaxDiscount = in.MaxDiscount
	c.UsageLimit = in.UsageLimit
	c.StartsAt = in.StartsAt
	c.ExpiresAt = in.ExpiresAt
	c.Active = in.Active
	return nil
}

// Validate checks that code can be applied to subtotal now and returns the
// coupon with the discount it grants. Rejections are validation errors that
// wrap the matching domain sentinel.
func (s *CouponService) Validate(ctx context.Context, code string, subtotal int64) (*domain.Coupon, int64, error) {
	c, err := s.coupons.GetByCode(ctx, normalizeCouponCode(code))
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			return nil, 0, s.reject(domain.ErrCouponNotFound, "not_found")
		}
		return nil, 0, err
	}

	discount, err := evaluateCoupon(c, subtotal, s.clock.Now())
	if err != nil {
		var rejected *couponRejection
		if errors.As(err, &rejected) {
			s.observeRejection(rejected.reason)
			return nil, 0, rejected.toError()
		}
		return nil, 0, err
	}
	return c, discount, nil
}

func (s *CouponService) reject(sentinel error, reason string) error {
	s.observeRejection(reason)
	return (&couponRejection{sentinel: sentinel, reason: reason}).toError()
}

func (s *CouponService) observeRejection(reason string) {
	if s.metrics != nil {
		s.metrics.CouponRejections.WithLabelValues(reason).Inc()
	}
}

type couponRejection struct {
	sentinel error
	reason   string
	minimum  int64
}

func (r *couponRejection) Error() string { return r.sentinel.Error() }
func (r *couponRejection) Unwrap() error { return r.sentinel }

func (r *couponRejection) toError() *apperrors.Error {
	e := apperrors.ValidationError(r.sentinel.Error()).
		WithField("reason", r.reason).
		WithCause(r.sentinel)
	if r.minimum > 0 {
		e = e.WithField("min_order_amount", r.minimum)
	}
	return e
}

// evaluateCoupon applies the coupon rules in order: active, started, not
// expired, usage left, minimum met. It returns the discount, which never
// exceeds subtotal.
func evaluateCoupon(c *domain.Coupon, subtotal int64, now time.Time) (int64, error) {
	switch {
	case !c.Active:
		return 0, &couponRejection{sentinel: domain.ErrCouponInactive, reason: "inactive"}
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return 0, &couponRejection{sentinel: domain.ErrCouponNotStarted, reason: "not_started"}
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return 0, &couponRejection{sentinel: domain.ErrCouponExpired, reason: "expired"}
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return 0, &couponRejection{sentinel: domain.ErrCouponUsageExhausted, reason: "exhausted"}
	case subtotal < c.MinOrderAmount:
		return 0, &couponRejection{sentinel: domain.ErrCouponMinimumNotMet, reason: "minimum_not_met", minimum: c.MinOrderAmount}
	}

	var discount int64
	switch c.Type {
	case domain.DiscountPercentage:
		discount = subtotal * c.Value / 100
		if c.MaxDiscount > 0 && discount > c.MaxDiscount {
			discount = c.MaxDiscount
		}
	case domain.DiscountFixed:
		discount = c.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}
