package httpserver

import (
	"net/http"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

// --- Coupons ---

func (s *Server) handleListCoupons(c echo.Context) error {
	page, err := pageRequest(c)
	if err != nil {
		return err
	}
	coupons, err := s.svc.Coupons.List(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, coupons)
}

func (s *Server) handleGetCoupon(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	coupon, err := s.svc.Coupons.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, coupon)
}

func (s *Server) handleCreateCoupon(c echo.Context) error {
	var in app.CouponInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	coupon, err := s.svc.Coupons.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, coupon)
}

func (s *Server) handleUpdateCoupon(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var in app.CouponInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	coupon, err := s.svc.Coupons.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, coupon)
}

func (s *Server) handleDeleteCoupon(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Coupons.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Reviews ---

func (s *Server) handleProductReviews(c echo.Context) error {
	page, err := pageRequest(c)
	if err != nil {
		return err
	}
	reviews, err := s.svc.Reviews.ListForProduct(c.Request().Context(), c.Param("slug"), page)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, reviews)
}

func (s *Server) handleSubmitReview(c echo.Context) error {
	user, err := userFromContext(c)
	if err != nil {
		return err
	}
	var in app.ReviewInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	review, err := s.svc.Reviews.Submit(c.Request().Context(), user.ID, c.Param("slug"), in)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, review)
}

func (s *Server) handleAdminListReviews(c echo.Context) error {
	page, err := pageRequest(c)
	if err != nil {
		return err
	}
	reviews, err := s.svc.Reviews.List(c.Request().Context(), domain.ReviewStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, reviews)
}

type moderateRequest struct {
	Status domain.ReviewStatus `json:"status"`
}

func (s *Server) handleModerateReview(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req moderateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	review, err := s.svc.Reviews.Moderate(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, review)
}

func (s *Server) handleDeleteReview(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Reviews.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Users ---

func (s *Server) handleListUsers(c echo.Context) error {
	page, err := pageRequest(c)
	if err != nil {
		return err
	}
	users, err := s.svc.Users.List(c.Request().Context(), domain.UserFilter{
		Role:        domain.Role(c.QueryParam("role")),
		Query:       strings.TrimSpace(c.QueryParam("q")),
		PageRequest: page,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, users)
}

type roleRequest struct {
	Role domain.Role `json:"role"`
}

func (s *Server) handleSetUserRole(c echo.Context) error {
	actor, err := userFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	user, err := s.svc.Users.SetRole(c.Request().Context(), actor, id, req.Role)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, user)
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleSetUserActive(c echo.Context) error {
	actor, err := userFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req activeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.Active == nil {
		return apperrors.ValidationError("active is required").WithField("field", "active")
	}
	user, err := s.svc.Users.SetActive(c.Request().Context(), actor, id, *req.Active)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, user)
}

// --- Dashboard ---

func (s *Server) handleDashboard(c echo.Context) error {
	stats, err := s.svc.Dashboard.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, stats)
}
