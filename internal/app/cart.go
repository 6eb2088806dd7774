package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
)

// CartService prices session carts against the live catalog. Carts do not
// reserve stock: availability is checked when items are added and again
// when the order is placed.
type CartService struct {
	store    domain.CartStore
	products domain.ProductRepository
}

func NewCartService(store domain.CartStore, products domain.ProductRepository) *CartService {
	return &CartService{store: store, products: products}
}

// Get prices the cart. Lines whose product no longer exists are dropped.
func (s *CartService) Get(ctx context.Context, cartID uuid.UUID) (*domain.CartView, error) {
	items, err := s.store.Items(ctx, cartID)
	if err != nil {
		return nil, err
	}

	view := &domain.CartView{ID: cartID, Lines: []domain.CartLine{}}
	if len(items) == 0 {
		return view, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	for id, qty := range items {
		p, ok := products[id]
		if !ok {
			s.prune(ctx, cartID, id)
			continue
		}

		line := domain.CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Slug:      p.Slug,
			SKU:       p.SKU,
			UnitPrice: p.Price,
			Quantity:  qty,
			LineTotal: p.Price * int64(qty),
			Available: p.Purchasable(qty),
			Stock:     p.Stock,
		}
		if len(p.ImageIDs) > 0 {
			img := p.ImageIDs[0]
			line.ImageID = &img
		}
		view.Lines = append(view.Lines, line)

		if line.Available {
			view.Subtotal += line.LineTotal
			view.ItemCount += qty
		}
	}

	sort.Slice(view.Lines, func(i, j int) bool {
		if view.Lines[i].Name != view.Lines[j].Name {
			return view.Lines[i].Name < view.Lines[j].Name
		}
		return view.Lines[i].ProductID.String() < view.Lines[j].ProductID.String()
	})
	return view, nil
}

func (s *CartService) prune(ctx context.Context, cartID, productID uuid.UUID) {
	if err := s.store.SetQuantity(ctx, cartID, productID, 0); err != nil {
		slog.WarnContext(ctx, "Failed to prune deleted product from cart", "cart_id", cartID.String(), "product_id", productID.String(), "error", err)
	}
}

// AddItem adds qty units to the product's line.
func (s *CartService) AddItem(ctx context.Context, cartID, productID uuid.UUID, qty int) (*domain.CartView, error) {
	if qty < 1 || qty > domain.MaxLineQuantity {
		return nil, quantityError()
	}

	items, err := s.store.Items(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.set(ctx, cartID, productID, items, items[productID]+qty)
}

// SetQuantity replaces the line's quantity; 0 removes the line.
func (s *CartService) SetQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) (*domain.CartView, error) {
	if qty < 0 || qty > domain.MaxLineQuantity {
		return nil, quantityError()
	}
	if qty == 0 {
		return s.RemoveItem(ctx, cartID, productID)
	}

	items, err := s.store.Items(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.set(ctx, cartID, productID, items, qty)
}

func (s *CartService) set(ctx context.Context, cartID, productID uuid.UUID, items map[uuid.UUID]int, qty int) (*domain.CartView, error) {
	if qty > domain.MaxLineQuantity {
		return nil, quantityError().WithField("in_cart", items[productID])
	}
	if _, exists := items[productID]; !exists && len(items) >= domain.MaxCartLines {
		return nil, apperrors.ValidationError(fmt.Sprintf("a cart can hold at most %d different products", domain.MaxCartLines))
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, apperrors.ValidationError("product is not available").WithField("product_id", productID)
	}
	if p.Stock < qty {
		return nil, apperrors.ValidationError("insufficient stock").
			WithField("product_id", productID).
			WithField("available", p.Stock).
			WithCause(domain.ErrInsufficientStock)
	}

	if err := s.store.SetQuantity(ctx, cartID, productID, qty); err != nil {
		return nil, err
	}
	return s.Get(ctx, cartID)
}

func (s *CartService) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) (*domain.CartView, error) {
	if err := s.store.SetQuantity(ctx, cartID, productID, 0); err != nil {
		return nil, err
	}
	return s.Get(ctx, cartID)
}

func (s *CartService) Clear(ctx context.Context, cartID uuid.UUID) error {
	return s.store.Clear(ctx, cartID)
}

func quantityError() *apperrors.Error {
	return apperrors.ValidationError(fmt.Sprintf("quantity must be between 1 and %d", domain.MaxLineQuantity)).
		WithField("field", "quantity")
}
