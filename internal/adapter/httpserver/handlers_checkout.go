package httpserver

import (
	"net/http"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type quoteRequest struct {
	CouponCode string              `json:"coupon_code"`
	Zone       domain.ShippingZone `json:"zone"`
}

type checkoutRequest struct {
	Shipping      domain.ShippingAddress `json:"shipping"`
	PaymentMethod domain.PaymentMethod   `json:"payment_method"`
	CouponCode    string                 `json:"coupon_code"`
	Notes         string                 `json:"notes"`
}

func (s *Server) checkoutCart(c echo.Context) (uuid.UUID, error) {
	cartID, exists, err := s.cartID(c, false)
	if err != nil {
		return uuid.Nil, err
	}
	if !exists {
		return uuid.Nil, apperrors.ValidationError("cart is empty")
	}
	return cartID, nil
}

func (s *Server) handleQuote(c echo.Context) error {
	var req quoteRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	cartID, err := s.checkoutCart(c)
	if err != nil {
		return err
	}
	quote, err := s.svc.Checkout.Quote(c.Request().Context(), cartID, req.CouponCode, req.Zone)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, quote)
}

// handleCheckout places the order for guests and logged-in customers alike.
func (s *Server) handleCheckout(c echo.Context) error {
	var req checkoutRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	cartID, err := s.checkoutCart(c)
	if err != nil {
		return err
	}
	userID, err := s.optionalUserID(c)
	if err != nil {
		return err
	}

	result, err := s.svc.Checkout.PlaceOrder(c.Request().Context(), app.PlaceOrderRequest{
		CartID:        cartID,
		UserID:        userID,
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
		Notes:         req.Notes,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, result)
}
