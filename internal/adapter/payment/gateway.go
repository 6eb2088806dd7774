// Package payment talks to the hosted payment gateway over HTTP.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/breaker"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/version"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/go-resty/resty/v2"
)

const requestTimeout = 10 * time.Second

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Message)
}

type Gateway struct {
	client  *resty.Client
	cb      circuitbreaker.CircuitBreaker[any]
	metrics *metrics.StoreMetrics
}

var _ domain.PaymentGateway = (*Gateway)(nil)

// NewGateway builds a client for baseURL. The breaker opens after 50%
// failures over at least 4 calls in 30s and probes again after 20s.
func NewGateway(baseURL, apiKey string, m *metrics.StoreMetrics, bm *metrics.BreakerMetrics) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetRetryCount(0).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.Get().UserAgent())

	return &Gateway{
		client: client,
		cb: breaker.New("payment", breaker.Settings{
			FailureRate:   0.5,
			MinExecutions: 4,
			Window:        30 * time.Second,
			Delay:         20 * time.Second,
		}, bm),
		metrics: m,
	}
}

type customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type sessionRequest struct {
	OrderNumber string   `json:"order_number"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	SuccessURL  string   `json:"success_url"`
	FailURL     string   `json:"fail_url"`
	CallbackURL string   `json:"callback_url"`
	Customer    customer `json:"customer"`
}

type sessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type verifyResponse struct {
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	OrderNumber   string `json:"order_number"`
	TransactionID string `json:"transaction_id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (g *Gateway) CreateSession(ctx context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error) {
	body := sessionRequest{
		OrderNumber: req.OrderNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
		SuccessURL:  req.SuccessURL,
		FailURL:     req.FailURL,
		CallbackURL: req.CallbackURL,
		Customer:    customer{Name: req.CustomerName, Phone: req.CustomerPhone, Email: req.CustomerEmail},
	}

	var out sessionResponse
	err := g.do(ctx, "create_session", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).SetResult(&out).Post("/sessions")
	})
	if err != nil {
		return nil, err
	}
	if out.SessionID == "" || out.RedirectURL == "" {
		return nil, errors.New("payment gateway returned an incomplete session")
	}
	return &domain.PaymentSession{SessionID: out.SessionID, RedirectURL: out.RedirectURL}, nil
}

func (g *Gateway) Verify(ctx context.Context, sessionID string) (*domain.PaymentVerification, error) {
	var out verifyResponse
	err := g.do(ctx, "verify", func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).SetPathParam("id", sessionID).Get("/sessions/{id}")
	})
	if err != nil {
		return nil, err
	}
	return &domain.PaymentVerification{
		Status:        gatewayStatus(out.Status),
		Amount:        out.Amount,
		OrderNumber:   out.OrderNumber,
		TransactionID: out.TransactionID,
	}, nil
}

func gatewayStatus(s string) domain.GatewayStatus {
	switch s {
	case "paid", "success", "completed":
		return domain.GatewayPaid
	case "failed", "cancelled", "expired":
		return domain.GatewayFailed
	default:
		return domain.GatewayPending
	}
}

// do runs one request through the breaker. Transport errors and 5xx count
// as failures; 4xx responses are the caller's fault and do not.
func (g *Gateway) do(ctx context.Context, operation string, send func(*resty.Request) (*resty.Response, error)) error {
	if !g.cb.TryAcquirePermit() {
		g.observe(operation, "rejected")
		return fmt.Errorf("%w: circuit open", domain.ErrPaymentUnavailable)
	}

	var apiErr errorResponse
	resp, err := send(g.client.R().SetContext(ctx).SetError(&apiErr))
	if err != nil {
		g.cb.RecordError(err)
		g.observe(operation, "error")
		return fmt.Errorf("%w: %w", domain.ErrPaymentUnavailable, err)
	}

	if resp.IsError() {
		e := &APIError{StatusCode: resp.StatusCode(), Message: apiErr.Message}
		if resp.StatusCode() >= http.StatusInternalServerError {
			g.cb.RecordError(e)
		} else {
			g.cb.RecordSuccess()
		}
		g.observe(operation, "error")
		return e
	}

	g.cb.RecordSuccess()
	g.observe(operation, "success")
	return nil
}

func (g *Gateway) observe(operation, outcome string) {
	if g.metrics != nil {
		g.metrics.PaymentCalls.WithLabelValues(operation, outcome).Inc()
	}
}
