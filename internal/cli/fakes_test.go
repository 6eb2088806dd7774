package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
)

// fakeCatalog keeps categories and products in memory keyed by slug.
type fakeCatalog struct {
	categories map[string]domain.Category
	products   map[string]domain.Product
	writes     int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
	}
}

func (f *fakeCatalog) ListCategories(context.Context) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(f.categories))
	for _, c := range f.categories {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCatalog) CreateCategory(_ context.Context, in app.CategoryInput) (*domain.Category, error) {
	f.writes++
	c := domain.Category{ID: uuid.New(), Name: in.Name, Slug: in.Slug, Description: in.Description, ParentID: in.ParentID, Position: in.Position}
	f.categories[c.Slug] = c
	return &c, nil
}

func (f *fakeCatalog) UpdateCategory(_ context.Context, id uuid.UUID, in app.CategoryInput) (*domain.Category, error) {
	f.writes++
	c := domain.Category{ID: id, Name: in.Name, Slug: in.Slug, Description: in.Description, ParentID: in.ParentID, Position: in.Position}
	f.categories[c.Slug] = c
	return &c, nil
}

func (f *fakeCatalog) CreateProduct(_ context.Context, in app.ProductInput) (*domain.Product, error) {
	f.writes++
	p := productFromInput(uuid.New(), in)
	f.products[p.Slug] = p
	return &p, nil
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, id uuid.UUID, in app.ProductInput) (*domain.Product, error) {
	f.writes++
	p := productFromInput(id, in)
	f.products[p.Slug] = p
	return &p, nil
}

func (f *fakeCatalog) GetBySlug(_ context.Context, slug string) (*domain.Product, error) {
	p, ok := f.products[slug]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func productFromInput(id uuid.UUID, in app.ProductInput) domain.Product {
	return domain.Product{
		ID: id, Name: in.Name, Slug: in.Slug, Description: in.Description,
		Price: in.Price, CompareAtPrice: in.CompareAtPrice, SKU: in.SKU, Stock: in.Stock,
		CategoryID: in.CategoryID, Active: in.Active, Featured: in.Featured, ImageIDs: in.ImageIDs,
	}
}

type fakeUsers struct {
	createAdminFn func(ctx context.Context, email, name, plain string) (*domain.User, error)
}

func (f *fakeUsers) CreateAdmin(ctx context.Context, email, name, plain string) (*domain.User, error) {
	return f.createAdminFn(ctx, email, name, plain)
}

type fakeOrders struct {
	lastFilter domain.OrderFilter
	orders     []domain.Order
}

func (f *fakeOrders) List(_ context.Context, filter domain.OrderFilter) (domain.Page[domain.Order], error) {
	f.lastFilter = filter
	return domain.NewPage(f.orders, len(f.orders), filter.PageRequest), nil
}

type fakeCoupons struct {
	coupons []domain.Coupon
}

func (f *fakeCoupons) List(_ context.Context, page domain.PageRequest) (domain.Page[domain.Coupon], error) {
	return domain.NewPage(f.coupons, len(f.coupons), page), nil
}

// run executes storectl with args against env and returns stdout.
func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()

	opened := false
	open := func(context.Context) (*Env, func(), error) {
		opened = true
		return env, func() {}, nil
	}

	var out bytes.Buffer
	cmd := NewRootCmd(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if env == nil && opened {
		t.Fatal("command opened the database unexpectedly")
	}
	return out.String(), err
}
