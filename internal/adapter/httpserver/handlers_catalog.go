package httpserver

import (
	"net/http"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleListCategories(c echo.Context) error {
	categories, err := s.svc.Catalog.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return writeJSON(c, http.StatusOK, categories)
}

func productFilter(c echo.Context) (domain.ProductFilter, error) {
	page, err := pageRequest(c)
	if err != nil {
		return domain.ProductFilter{}, err
	}
	f := domain.ProductFilter{
		Query:        strings.TrimSpace(c.QueryParam("q")),
		CategorySlug: c.QueryParam("category"),
		Sort:         domain.ProductSort(c.QueryParam("sort")),
		PageRequest:  page,
	}
	if f.MinPrice, err = queryInt64(c, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryInt64(c, "max_price"); err != nil {
		return f, err
	}
	if f.InStock, err = queryBool(c, "in_stock"); err != nil {
		return f, err
	}
	if f.Featured, err = queryBool(c, "featured"); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) handleListProducts(c echo.Context) error {
	f, err := productFilter(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Catalog.ListProducts(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, page)
}

func (s *Server) handleGetProduct(c echo.Context) error {
	product, err := s.svc.Catalog.GetProductBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, product)
}

// --- Admin ---

func (s *Server) handleCreateCategory(c echo.Context) error {
	var in app.CategoryInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	category, err := s.svc.Catalog.CreateCategory(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, category)
}

func (s *Server) handleUpdateCategory(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var in app.CategoryInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	category, err := s.svc.Catalog.UpdateCategory(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, category)
}

func (s *Server) handleDeleteCategory(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Catalog.DeleteCategory(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAdminListProducts(c echo.Context) error {
	f, err := productFilter(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Catalog.ListAllProducts(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, page)
}

func (s *Server) handleAdminGetProduct(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	product, err := s.svc.Catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, product)
}

func (s *Server) handleCreateProduct(c echo.Context) error {
	var in app.ProductInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	product, err := s.svc.Catalog.CreateProduct(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusCreated, product)
}

func (s *Server) handleUpdateProduct(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var in app.ProductInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	product, err := s.svc.Catalog.UpdateProduct(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, product)
}

// handleDeleteProduct reports whether the product was only deactivated
// because orders still reference it.
func (s *Server) handleDeleteProduct(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	softDeleted, err := s.svc.Catalog.DeleteProduct(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]bool{"soft_deleted": softDeleted})
}

type stockRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleAdjustStock(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req stockRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	stock, err := s.svc.Catalog.AdjustStock(c.Request().Context(), id, req.Delta)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]int{"stock": stock})
}
