package httpserver

import (
	"net/http"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/labstack/echo/v4"
)

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// handleGetCart answers with an empty cart until the visitor adds something,
// so browsing never creates a session cookie.
func (s *Server) handleGetCart(c echo.Context) error {
	cartID, exists, err := s.cartID(c, false)
	if err != nil {
		return err
	}
	if !exists {
		return writeJSON(c, http.StatusOK, &domain.CartView{Lines: []domain.CartLine{}})
	}
	view, err := s.svc.Cart.Get(c.Request().Context(), cartID)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, view)
}

func (s *Server) handleAddCartItem(c echo.Context) error {
	var req cartItemRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	productID, err := parseUUID(req.ProductID, "product_id")
	if err != nil {
		return err
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cartID, _, err := s.cartID(c, true)
	if err != nil {
		return err
	}
	view, err := s.svc.Cart.AddItem(c.Request().Context(), cartID, productID, req.Quantity)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, view)
}

func (s *Server) handleSetCartItem(c echo.Context) error {
	productID, err := uuidParam(c, "productID")
	if err != nil {
		return err
	}
	var req cartItemRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	cartID, _, err := s.cartID(c, true)
	if err != nil {
		return err
	}
	view, err := s.svc.Cart.SetQuantity(c.Request().Context(), cartID, productID, req.Quantity)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, view)
}

func (s *Server) handleRemoveCartItem(c echo.Context) error {
	productID, err := uuidParam(c, "productID")
	if err != nil {
		return err
	}
	cartID, exists, err := s.cartID(c, false)
	if err != nil {
		return err
	}
	if !exists {
		return writeJSON(c, http.StatusOK, &domain.CartView{Lines: []domain.CartLine{}})
	}
	view, err := s.svc.Cart.RemoveItem(c.Request().Context(), cartID, productID)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, view)
}

func (s *Server) handleClearCart(c echo.Context) error {
	cartID, exists, err := s.cartID(c, false)
	if err != nil {
		return err
	}
	if exists {
		if err := s.svc.Cart.Clear(c.Request().Context(), cartID); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}
