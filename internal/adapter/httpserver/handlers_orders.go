package httpserver

import (
	"net/http"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleTrackOrder(c echo.Context) error {
	number := strings.TrimSpace(c.QueryParam("number"))
	phone := strings.TrimSpace(c.QueryParam("phone"))
	if number == "" || phone == "" {
		return apperrors.ValidationError("number and phone are required")
	}
	order, err := s.svc.Orders.Track(c.Request().Context(), number, phone)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, order)
}

// --- Account ---

func (s *Server) handleAccountOrders(c echo.Context) error {
	userID, _ := c.Get(ctxUserID).(uuid.UUID)
	page, err := pageRequest(c)
	if err != nil {
		return err
	}
	orders, err := s.svc.Orders.ListForUser(c.Request().Context(), userID, page)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, orders)
}

func (s *Server) handleAccountOrder(c echo.Context) error {
	userID, _ := c.Get(ctxUserID).(uuid.UUID)
	order, err := s.svc.Orders.GetForUser(c.Request().Context(), userID, c.Param("number"))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, order)
}

func (s *Server) handleCancelAccountOrder(c echo.Context) error {
	userID, _ := c.Get(ctxUserID).(uuid.UUID)
	order, err := s.svc.Orders.CancelByCustomer(c.Request().Context(), userID, c.Param("number"))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, order)
}

// --- Admin ---

func (s *Server) handleAdminListOrders(c echo.Context) error {
	page, err := pageRequest(c)
	if err != nil {
		return err
	}
	orders, err := s.svc.Orders.List(c.Request().Context(), domain.OrderFilter{
		Status:        domain.OrderStatus(c.QueryParam("status")),
		PaymentStatus: domain.PaymentStatus(c.QueryParam("payment_status")),
		Query:         strings.TrimSpace(c.QueryParam("q")),
		PageRequest:   page,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, orders)
}

func (s *Server) handleAdminGetOrder(c echo.Context) error {
	order, err := s.svc.Orders.Get(c.Request().Context(), c.Param("number"))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, order)
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
	Note   string             `json:"note"`
}

func (s *Server) handleUpdateOrderStatus(c echo.Context) error {
	actorID, _ := c.Get(ctxUserID).(uuid.UUID)
	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	order, err := s.svc.Orders.UpdateStatus(c.Request().Context(), actorID, c.Param("number"), req.Status, req.Note)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, order)
}

type paymentRequest struct {
	Status domain.PaymentStatus `json:"status"`
	Ref    string               `json:"ref"`
}

func (s *Server) handleUpdateOrderPayment(c echo.Context) error {
	var req paymentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	order, err := s.svc.Orders.MarkPayment(c.Request().Context(), c.Param("number"), req.Status, req.Ref)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, order)
}

type paymentCallback struct {
	SessionID   string `json:"session_id" form:"session_id" query:"session_id"`
	OrderNumber string `json:"order_number" form:"order_number" query:"order_number"`
}

// handlePaymentCallback is called by the gateway, not the browser, so it
// sits outside CSRF. The payload only names the session; the gateway is
// queried for the actual result.
func (s *Server) handlePaymentCallback(c echo.Context) error {
	var req paymentCallback
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.OrderNumber == "" {
		return apperrors.ValidationError("order_number is required").WithField("field", "order_number")
	}
	order, err := s.svc.Orders.ConfirmPayment(c.Request().Context(), req.SessionID, req.OrderNumber)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]string{
		"order_number":   order.Number,
		"status":         string(order.Status),
		"payment_status": string(order.PaymentStatus),
	})
}
