package domain

import "context"

type PaymentSessionRequest struct {
	OrderNumber   string
	Amount        int64
	Currency      string
	SuccessURL    string
	FailURL       string
	CallbackURL   string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
}

type PaymentSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type GatewayStatus string

const (
	GatewayPaid    GatewayStatus = "paid"
	GatewayFailed  GatewayStatus = "failed"
	GatewayPending GatewayStatus = "pending"
)

type PaymentVerification struct {
	Status        GatewayStatus
	Amount        int64
	OrderNumber   string
	TransactionID string
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, req PaymentSessionRequest) (*PaymentSession, error)
	Verify(ctx context.Context, sessionID string) (*PaymentVerification, error)
}
