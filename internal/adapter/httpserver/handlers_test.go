package httpserver

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(method, target string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withUser(c echo.Context, u *domain.User) {
	c.Set(ctxUser, u)
	c.Set(ctxUserID, u.ID)
	c.Set(ctxUserRole, u.Role)
}

func TestHandleListProducts_ParsesFilter(t *testing.T) {
	svc := testServices()
	var got domain.ProductFilter
	svc.Catalog = &mockCatalog{
		listProductsFn: func(_ context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error) {
			got = f
			return domain.NewPage[domain.Product](nil, 0, f.PageRequest), nil
		},
	}
	srv := newTestServer(t, svc)
	c, rec := newContext(http.MethodGet, "/api/products?q=+pearl+&category=rings&min_price=1000&max_price=5000&in_stock=true&sort=price_asc&page=2&limit=500", nil)

	require.NoError(t, srv.handleListProducts(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pearl", got.Query)
	assert.Equal(t, "rings", got.CategorySlug)
	assert.Equal(t, int64(1000), got.MinPrice)
	assert.Equal(t, int64(5000), got.MaxPrice)
	assert.True(t, got.InStock)
	assert.False(t, got.Featured)
	assert.Equal(t, domain.SortPriceAsc, got.Sort)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, domain.MaxPageLimit, got.Limit)
}

func TestHandleListProducts_BadQuery(t *testing.T) {
	srv := newTestServer(t, testServices())
	c, _ := newContext(http.MethodGet, "/api/products?min_price=cheap", nil)

	err := srv.handleListProducts(c)

	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}

func TestHandleListCategories_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, testServices())
	c, rec := newContext(http.MethodGet, "/api/categories", nil)

	require.NoError(t, srv.handleListCategories(c))

	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleDeleteProduct_ReportsSoftDelete(t *testing.T) {
	svc := testServices()
	id := uuid.New()
	svc.Catalog = &mockCatalog{
		deleteProductFn: func(_ context.Context, got uuid.UUID) (bool, error) {
			assert.Equal(t, id, got)
			return true, nil
		},
	}
	srv := newTestServer(t, svc)
	c, rec := newContext(http.MethodDelete, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	require.NoError(t, srv.handleDeleteProduct(c))

	assert.JSONEq(t, `{"soft_deleted":true}`, rec.Body.String())
}

func TestHandleAdjustStock(t *testing.T) {
	svc := testServices()
	svc.Catalog = &mockCatalog{
		adjustStockFn: func(_ context.Context, _ uuid.UUID, delta int) (int, error) {
			return 10 + delta, nil
		},
	}
	srv := newTestServer(t, svc)
	c, rec := newContext(http.MethodPost, "/", strings.NewReader(`{"delta":-3}`))
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	require.NoError(t, srv.handleAdjustStock(c))

	assert.JSONEq(t, `{"stock":7}`, rec.Body.String())
}

func TestHandleAdjustStock_InvalidID(t *testing.T) {
	srv := newTestServer(t, testServices())
	c, _ := newContext(http.MethodPost, "/", strings.NewReader(`{"delta":1}`))
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := srv.handleAdjustStock(c)

	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}

func TestHandleTrackOrder(t *testing.T) {
	svc := testServices()
	svc.Orders = &mockOrders{
		trackFn: func(_ context.Context, number, phone string) (*domain.Order, error) {
			if number == "RM250314-000042" && phone == "01712345678" {
				return &domain.Order{Number: number, Status: domain.StatusShipped}, nil
			}
			return nil, domain.ErrOrderNotFound
		},
	}
	srv := newTestServer(t, svc)

	t.Run("missing phone", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, "/api/orders/track?number=RM250314-000042", nil)
		err := srv.handleTrackOrder(c)
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	})

	t.Run("found", func(t *testing.T) {
		c, rec := newContext(http.MethodGet, "/api/orders/track?number=RM250314-000042&phone=01712345678", nil)
		require.NoError(t, srv.handleTrackOrder(c))
		assert.Contains(t, rec.Body.String(), `"status":"shipped"`)
	})

	t.Run("wrong phone", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, "/api/orders/track?number=RM250314-000042&phone=01800000000", nil)
		err := srv.handleTrackOrder(c)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestHandleUpdateOrderStatus_PassesActor(t *testing.T) {
	svc := testServices()
	staff := testUser(domain.RoleStaff)
	svc.Orders = &mockOrders{
		updateStatusFn: func(_ context.Context, actorID uuid.UUID, number string, to domain.OrderStatus, note string) (*domain.Order, error) {
			assert.Equal(t, staff.ID, actorID)
			assert.Equal(t, "RM250314-000042", number)
			assert.Equal(t, "packed", note)
			return &domain.Order{Number: number, Status: to}, nil
		},
	}
	srv := newTestServer(t, svc)
	c, rec := newContext(http.MethodPut, "/", strings.NewReader(`{"status":"processing","note":"packed"}`))
	c.SetParamNames("number")
	c.SetParamValues("RM250314-000042")
	withUser(c, staff)

	require.NoError(t, srv.handleUpdateOrderStatus(c))

	assert.Contains(t, rec.Body.String(), `"status":"processing"`)
}

func TestHandleAdminListOrders_Filters(t *testing.T) {
	svc := testServices()
	var got domain.OrderFilter
	svc.Orders = &mockOrders{
		listFn: func(_ context.Context, f domain.OrderFilter) (domain.Page[domain.Order], error) {
			got = f
			return domain.NewPage[domain.Order](nil, 0, f.PageRequest), nil
		},
	}
	srv := newTestServer(t, svc)
	c, rec := newContext(http.MethodGet, "/api/admin/orders?status=pending&payment_status=unpaid&q=0171", nil)

	require.NoError(t, srv.handleAdminListOrders(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.PaymentUnpaid, got.PaymentStatus)
	assert.Equal(t, "0171", got.Query)
	assert.Equal(t, domain.DefaultPageLimit, got.Limit)
}

func TestHandleSubmitReview(t *testing.T) {
	svc := testServices()
	user := testUser(domain.RoleCustomer)
	svc.Reviews = &mockReviews{
		submitFn: func(_ context.Context, userID uuid.UUID, slug string, in app.ReviewInput) (*domain.Review, error) {
			assert.Equal(t, user.ID, userID)
			assert.Equal(t, "pearl-ring", slug)
			assert.Equal(t, 5, in.Rating)
			return &domain.Review{ID: uuid.New(), Rating: in.Rating, Status: domain.ReviewPending}, nil
		},
	}
	srv := newTestServer(t, svc)
	c, rec := newContext(http.MethodPost, "/", strings.NewReader(`{"rating":5,"title":"Lovely","body":"Great shine"}`))
	c.SetParamNames("slug")
	c.SetParamValues("pearl-ring")
	withUser(c, user)

	require.NoError(t, srv.handleSubmitReview(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestHandleSetUserActive(t *testing.T) {
	svc := testServices()
	admin := testUser(domain.RoleAdmin)
	target := uuid.New()
	svc.Users.(*mockUsers).setActiveFn = func(_ context.Context, actor *domain.User, id uuid.UUID, active bool) (*domain.User, error) {
		assert.Equal(t, admin, actor)
		assert.Equal(t, target, id)
		return &domain.User{ID: id, Active: active}, nil
	}
	srv := newTestServer(t, svc)

	t.Run("missing field", func(t *testing.T) {
		c, _ := newContext(http.MethodPut, "/", strings.NewReader(`{}`))
		c.SetParamNames("id")
		c.SetParamValues(target.String())
		withUser(c, admin)

		err := srv.handleSetUserActive(c)
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	})

	t.Run("deactivate", func(t *testing.T) {
		c, rec := newContext(http.MethodPut, "/", strings.NewReader(`{"active":false}`))
		c.SetParamNames("id")
		c.SetParamValues(target.String())
		withUser(c, admin)

		require.NoError(t, srv.handleSetUserActive(c))
		assert.Contains(t, rec.Body.String(), `"active":false`)
	})
}

func TestHandleUploadMedia(t *testing.T) {
	svc := testServices()
	svc.Media = &mockMedia{
		uploadFn: func(_ context.Context, filename, alt string, r io.Reader) (*domain.Media, error) {
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "ring.png", filename)
			assert.Equal(t, "Pearl ring", alt)
			assert.Equal(t, []byte("fake-png"), data)
			return &domain.Media{ID: uuid.New(), Filename: filename, ContentType: "image/png", Size: int64(len(data))}, nil
		},
	}
	srv := newTestServer(t, svc)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "ring.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake-png"))
	require.NoError(t, w.WriteField("alt", "Pearl ring"))
	require.NoError(t, w.Close())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/media", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, srv.handleUploadMedia(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content_type":"image/png"`)
	assert.NotContains(t, rec.Body.String(), `"key"`)
}

func TestHandleUploadMedia_MissingFile(t *testing.T) {
	srv := newTestServer(t, testServices())
	c, _ := newContext(http.MethodPost, "/api/admin/media", strings.NewReader(`{}`))

	err := srv.handleUploadMedia(c)

	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}

func TestHandleServeMedia(t *testing.T) {
	svc := testServices()
	id := uuid.New()
	svc.Media = &mockMedia{
		openFn: func(_ context.Context, got uuid.UUID) (*domain.Media, io.ReadCloser, error) {
			if got != id {
				return nil, nil, domain.ErrMediaNotFound
			}
			return &domain.Media{ID: id, ContentType: "image/webp", Size: 4}, io.NopCloser(strings.NewReader("RIFF")), nil
		},
	}
	srv := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/"+id.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "4", rec.Header().Get(echo.HeaderContentLength))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
	assert.Equal(t, "RIFF", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDashboard(t *testing.T) {
	srv := newTestServer(t, testServices())
	c, rec := newContext(http.MethodGet, "/api/admin/dashboard", nil)

	require.NoError(t, srv.handleDashboard(c))

	assert.Contains(t, rec.Body.String(), `"orders_by_status":{"pending":2}`)
}

func TestHandleQuote(t *testing.T) {
	svc := testServices()
	cartID := uuid.New()
	svc.Checkout = &mockCheckout{
		quoteFn: func(_ context.Context, got uuid.UUID, code string, zone domain.ShippingZone) (*app.Quote, error) {
			assert.Equal(t, cartID, got)
			assert.Equal(t, "EID10", code)
			assert.Equal(t, domain.ZoneOutsideCity, zone)
			return &app.Quote{Subtotal: 10000, Discount: 1000, ShippingFee: 12000, Total: 21000, Currency: "BDT"}, nil
		},
	}
	srv := newTestServer(t, svc)
	c, rec := newContext(http.MethodPost, "/api/checkout/quote", strings.NewReader(`{"coupon_code":"EID10","zone":"outside_city"}`))

	session := srv.session(c)
	session.Values[sessionKeyCartID] = cartID.String()

	require.NoError(t, srv.handleQuote(c))

	assert.Contains(t, rec.Body.String(), `"total":21000`)
}
