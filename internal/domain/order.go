package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusReturned   OrderStatus = "returned"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusReturned},
	StatusDelivered:  {StatusReturned},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// ReleasesStock reports whether entering s puts the order's items back on the shelf.
func (s OrderStatus) ReleasesStock() bool {
	return s == StatusCancelled || s == StatusReturned
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from s in one step.
func AllowedTransitions(s OrderStatus) []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[s]...)
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool { return m == PaymentCOD || m == PaymentOnline }

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type ShippingZone string

const (
	ZoneInsideCity  ShippingZone = "inside_city"
	ZoneOutsideCity ShippingZone = "outside_city"
)

func (z ShippingZone) Valid() bool { return z == ZoneInsideCity || z == ZoneOutsideCity }

type ShippingAddress struct {
	Name  string       `json:"name"`
	Phone string       `json:"phone"`
	Email string       `json:"email,omitempty"`
	Line1 string       `json:"line1"`
	City  string       `json:"city"`
	Zone  ShippingZone `json:"zone"`
}

// OrderItem is a snapshot of the product at purchase time.
type OrderItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku,omitempty"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	LineTotal int64     `json:"line_total"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	Number        string          `json:"number"`
	UserID        *uuid.UUID      `json:"user_id,omitempty"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Shipping      ShippingAddress `json:"shipping"`
	Items         []OrderItem     `json:"items,omitempty"`
	Subtotal      int64           `json:"subtotal"`
	Discount      int64           `json:"discount"`
	ShippingFee   int64           `json:"shipping_fee"`
	Total         int64           `json:"total"`
	CouponID      *uuid.UUID      `json:"coupon_id,omitempty"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderFilter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Query         string
	UserID        *uuid.UUID
	PageRequest
}

// StatusTransition is a conditional status change: it applies only while the
// order is still in From, and with RequireUnpaid only while nothing has
// been paid for it.
type StatusTransition struct {
	From          OrderStatus
	To            OrderStatus
	Note          string
	ActorID       *uuid.UUID
	Restock       bool
	MarkPaid      bool
	RequireUnpaid bool
	At            time.Time
}

type StatusChange struct {
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
	Note    string      `json:"note,omitempty"`
	ActorID *uuid.UUID  `json:"actor_id,omitempty"`
	At      time.Time   `json:"at"`
}

type OrderRepository interface {
	// Create persists the order atomically: conditional stock decrements,
	// coupon redemption, order row and item snapshots. It fails with
	// ErrOrderNumberTaken when Number collides, a *StockError or
	// ErrCouponUsageExhausted.
	Create(ctx context.Context, o *Order) error
	GetByNumber(ctx context.Context, number string) (*Order, error)
	List(ctx context.Context, f OrderFilter) ([]Order, int, error)
	// Transition fails with ErrOrderStatusChanged when the order left t.From.
	Transition(ctx context.Context, number string, t StatusTransition) (*Order, error)
	SetPayment(ctx context.Context, number string, status PaymentStatus, ref string) (*Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error)
	ListExpiredUnpaid(ctx context.Context, createdBefore time.Time, limit int) ([]Order, error)
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}
