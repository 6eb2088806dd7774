package app

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
)

// --- Catalog ---

type mockCategoryRepo struct {
	getByIDFn func(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	createFn  func(ctx context.Context, c *domain.Category) error
	updateFn  func(ctx context.Context, c *domain.Category) error
}

func (m *mockCategoryRepo) List(context.Context) ([]domain.Category, error) { return nil, nil }

func (m *mockCategoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrCategoryNotFound
}

func (m *mockCategoryRepo) Create(ctx context.Context, c *domain.Category) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockCategoryRepo) Update(ctx context.Context, c *domain.Category) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, c)
	}
	return nil
}

func (m *mockCategoryRepo) Delete(context.Context, uuid.UUID) error { return nil }

type mockProductRepo struct {
	listFn        func(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int, error)
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	getBySlugFn   func(ctx context.Context, slug string) (*domain.Product, error)
	getManyFn     func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	createFn      func(ctx context.Context, p *domain.Product) error
	updateFn      func(ctx context.Context, p *domain.Product) error
	deleteFn      func(ctx context.Context, id uuid.UUID) (bool, error)
	adjustStockFn func(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

func (m *mockProductRepo) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return nil, 0, nil
}

func (m *mockProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrProductNotFound
}

func (m *mockProductRepo) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, domain.ErrProductNotFound
}

func (m *mockProductRepo) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	if m.getManyFn != nil {
		return m.getManyFn(ctx, ids)
	}
	return map[uuid.UUID]*domain.Product{}, nil
}

func (m *mockProductRepo) Create(ctx context.Context, p *domain.Product) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}

func (m *mockProductRepo) Update(ctx context.Context, p *domain.Product) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, p)
	}
	return nil
}

func (m *mockProductRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return false, nil
}

func (m *mockProductRepo) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if m.adjustStockFn != nil {
		return m.adjustStockFn(ctx, id, delta)
	}
	return 0, nil
}

// productCatalog backs a mockProductRepo with a fixed set of products.
func productCatalog(products ...*domain.Product) *mockProductRepo {
	byID := make(map[uuid.UUID]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{
		getByIDFn: func(_ context.Context, id uuid.UUID) (*domain.Product, error) {
			if p, ok := byID[id]; ok {
				cp := *p
				return &cp, nil
			}
			return nil, domain.ErrProductNotFound
		},
		getBySlugFn: func(_ context.Context, slug string) (*domain.Product, error) {
			for _, p := range byID {
				if p.Slug == slug {
					cp := *p
					return &cp, nil
				}
			}
			return nil, domain.ErrProductNotFound
		},
		getManyFn: func(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
			out := make(map[uuid.UUID]*domain.Product)
			for _, id := range ids {
				if p, ok := byID[id]; ok {
					cp := *p
					out[id] = &cp
				}
			}
			return out, nil
		},
	}
}

type mockMediaRepo struct {
	createFn      func(ctx context.Context, m *domain.Media) error
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*domain.Media, error)
	deleteFn      func(ctx context.Context, id uuid.UUID) error
	missingFn     func(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	listOrphansFn func(ctx context.Context, before time.Time, limit int) ([]domain.Media, error)
}

func (m *mockMediaRepo) Create(ctx context.Context, md *domain.Media) error {
	if m.createFn != nil {
		return m.createFn(ctx, md)
	}
	return nil
}

func (m *mockMediaRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Media, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrMediaNotFound
}

func (m *mockMediaRepo) List(context.Context, domain.PageRequest) ([]domain.Media, int, error) {
	return nil, 0, nil
}

func (m *mockMediaRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockMediaRepo) Missing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if m.missingFn != nil {
		return m.missingFn(ctx, ids)
	}
	return nil, nil
}

func (m *mockMediaRepo) ListOrphans(ctx context.Context, before time.Time, limit int) ([]domain.Media, error) {
	if m.listOrphansFn != nil {
		return m.listOrphansFn(ctx, before, limit)
	}
	return nil, nil
}

type mockProductCache struct {
	mu          sync.Mutex
	getBySlugFn func(ctx context.Context, slug string) (*domain.Product, error)
	invalidated []string
}

func (m *mockProductCache) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, domain.ErrProductNotFound
}

func (m *mockProductCache) Invalidate(_ context.Context, slugs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, slugs...)
	return nil
}

// memBlobStore is an in-memory domain.BlobStore.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	putFn func(key string) error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Put(_ context.Context, key string, r io.Reader) error {
	if s.putFn != nil {
		if err := s.putFn(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return nil
}

func (s *memBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *memBlobStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok
}

// --- Cart ---

// memCartStore is an in-memory domain.CartStore.
type memCartStore struct {
	mu    sync.Mutex
	carts map[uuid.UUID]map[uuid.UUID]int
}

func newMemCartStore() *memCartStore {
	return &memCartStore{carts: make(map[uuid.UUID]map[uuid.UUID]int)}
}

func (s *memCartStore) Items(_ context.Context, cartID uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]int, len(s.carts[cartID]))
	for id, qty := range s.carts[cartID] {
		out[id] = qty
	}
	return out, nil
}

func (s *memCartStore) SetQuantity(_ context.Context, cartID, productID uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carts[cartID] == nil {
		s.carts[cartID] = make(map[uuid.UUID]int)
	}
	if qty <= 0 {
		delete(s.carts[cartID], productID)
		return nil
	}
	s.carts[cartID][productID] = qty
	return nil
}

func (s *memCartStore) Clear(_ context.Context, cartID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, cartID)
	return nil
}

// --- Coupons ---

type mockCouponRepo struct {
	getByCodeFn func(ctx context.Context, code string) (*domain.Coupon, error)
	getByIDFn   func(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	createFn    func(ctx context.Context, c *domain.Coupon) error
	updateFn    func(ctx context.Context, c *domain.Coupon) error
}

func (m *mockCouponRepo) List(context.Context, domain.PageRequest) ([]domain.Coupon, int, error) {
	return nil, 0, nil
}

func (m *mockCouponRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrCouponNotFound
}

func (m *mockCouponRepo) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, domain.ErrCouponNotFound
}

func (m *mockCouponRepo) Create(ctx context.Context, c *domain.Coupon) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockCouponRepo) Update(ctx context.Context, c *domain.Coupon) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, c)
	}
	return nil
}

func (m *mockCouponRepo) Delete(context.Context, uuid.UUID) error { return nil }

// --- Orders ---

type mockOrderRepo struct {
	createFn              func(ctx context.Context, o *domain.Order) error
	getByNumberFn         func(ctx context.Context, number string) (*domain.Order, error)
	listFn                func(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int, error)
	transitionFn          func(ctx context.Context, number string, t domain.StatusTransition) (*domain.Order, error)
	setPaymentFn          func(ctx context.Context, number string, status domain.PaymentStatus, ref string) (*domain.Order, error)
	historyFn             func(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error)
	listExpiredUnpaidFn   func(ctx context.Context, before time.Time, limit int) ([]domain.Order, error)
	hasDeliveredProductFn func(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

func (m *mockOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	if m.createFn != nil {
		return m.createFn(ctx, o)
	}
	return nil
}

func (m *mockOrderRepo) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	if m.getByNumberFn != nil {
		return m.getByNumberFn(ctx, number)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrderRepo) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return nil, 0, nil
}

func (m *mockOrderRepo) Transition(ctx context.Context, number string, t domain.StatusTransition) (*domain.Order, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, number, t)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrderRepo) SetPayment(ctx context.Context, number string, status domain.PaymentStatus, ref string) (*domain.Order, error) {
	if m.setPaymentFn != nil {
		return m.setPaymentFn(ctx, number, status, ref)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrderRepo) History(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockOrderRepo) ListExpiredUnpaid(ctx context.Context, before time.Time, limit int) ([]domain.Order, error) {
	if m.listExpiredUnpaidFn != nil {
		return m.listExpiredUnpaidFn(ctx, before, limit)
	}
	return nil, nil
}

func (m *mockOrderRepo) HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	if m.hasDeliveredProductFn != nil {
		return m.hasDeliveredProductFn(ctx, userID, productID)
	}
	return false, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []domain.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type mockGateway struct {
	createSessionFn func(ctx context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error)
	verifyFn        func(ctx context.Context, sessionID string) (*domain.PaymentVerification, error)
}

func (m *mockGateway) CreateSession(ctx context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error) {
	if m.createSessionFn != nil {
		return m.createSessionFn(ctx, req)
	}
	return &domain.PaymentSession{SessionID: "sess_1", RedirectURL: "https://pay.example.test/sess_1"}, nil
}

func (m *mockGateway) Verify(ctx context.Context, sessionID string) (*domain.PaymentVerification, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, sessionID)
	}
	return &domain.PaymentVerification{Status: domain.GatewayPending}, nil
}

// --- Reviews ---

type mockReviewRepo struct {
	createFn    func(ctx context.Context, r *domain.Review) error
	listFn      func(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, int, error)
	setStatusFn func(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error)
	deleteFn    func(ctx context.Context, id uuid.UUID) (*domain.Review, error)
}

func (m *mockReviewRepo) Create(ctx context.Context, r *domain.Review) error {
	if m.createFn != nil {
		return m.createFn(ctx, r)
	}
	return nil
}

func (m *mockReviewRepo) GetByID(context.Context, uuid.UUID) (*domain.Review, error) {
	return nil, domain.ErrReviewNotFound
}

func (m *mockReviewRepo) List(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return nil, 0, nil
}

func (m *mockReviewRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error) {
	if m.setStatusFn != nil {
		return m.setStatusFn(ctx, id, status)
	}
	return nil, domain.ErrReviewNotFound
}

func (m *mockReviewRepo) Delete(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil, domain.ErrReviewNotFound
}

// --- Users ---

// memUserRepo is an in-memory domain.UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	r := &memUserRepo{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return domain.ErrEmailTaken
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) List(context.Context, domain.UserFilter) ([]domain.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (r *memUserRepo) UpdateProfile(_ context.Context, id uuid.UUID, name, phone string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Name, u.Phone = name, phone
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	return r.mutate(id, func(u *domain.User) { u.PasswordHash = hash })
}

func (r *memUserRepo) SetRole(_ context.Context, id uuid.UUID, role domain.Role) error {
	return r.mutate(id, func(u *domain.User) { u.Role = role })
}

func (r *memUserRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return r.mutate(id, func(u *domain.User) { u.Active = active })
}

func (r *memUserRepo) mutate(id uuid.UUID, fn func(u *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (r *memUserRepo) CountActiveAdmins(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.users {
		if u.Role == domain.RoleAdmin && u.Active {
			n++
		}
	}
	return n, nil
}

// --- Dashboard ---

type mockStatsRepo struct {
	revenueFn  func(ctx context.Context, since time.Time) (int64, error)
	lowStockFn func(ctx context.Context, threshold, limit int) ([]domain.LowStockProduct, error)
	customers  int
	pending    int
	byStatus   map[domain.OrderStatus]int
}

func (m *mockStatsRepo) OrdersByStatus(context.Context) (map[domain.OrderStatus]int, error) {
	return m.byStatus, nil
}

func (m *mockStatsRepo) PaidRevenueSince(ctx context.Context, since time.Time) (int64, error) {
	if m.revenueFn != nil {
		return m.revenueFn(ctx, since)
	}
	return 0, nil
}

func (m *mockStatsRepo) CountCustomers(context.Context) (int, error)      { return m.customers, nil }
func (m *mockStatsRepo) CountPendingReviews(context.Context) (int, error) { return m.pending, nil }

func (m *mockStatsRepo) LowStock(ctx context.Context, threshold, limit int) ([]domain.LowStockProduct, error) {
	if m.lowStockFn != nil {
		return m.lowStockFn(ctx, threshold, limit)
	}
	return nil, nil
}
