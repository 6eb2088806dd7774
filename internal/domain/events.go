package domain

import (
	"context"
	"time"
)

type OrderEventType string

const (
	EventOrderCreated       OrderEventType = "order.created"
	EventOrderStatusChanged OrderEventType = "order.status_changed"
	EventOrderPaymentUpdate OrderEventType = "order.payment_updated"
)

// OrderEvent feeds the back-office live order view.
type OrderEvent struct {
	Type          OrderEventType `json:"type"`
	OrderNumber   string         `json:"order_number"`
	Status        OrderStatus    `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	Total         int64          `json:"total"`
	At            time.Time      `json:"at"`
}

func NewOrderEvent(t OrderEventType, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:          t,
		OrderNumber:   o.Number,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		At:            at,
	}
}

type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, e OrderEvent) error
}
