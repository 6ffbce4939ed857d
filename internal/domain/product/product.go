package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError indicates a product cannot cover the requested
// quantity. Available is the stock observed at the time of the check.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: only %d available", name, e.Available)
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	ModelNo     string
	Description string
	Category    string
	Brand       string
	Color       string
	Image       string
	Price       decimal.Decimal
	Stock       int

	OnDiscount    bool
	DiscountPrice decimal.Decimal
	DiscountStart *time.Time
	DiscountEnd   *time.Time
}

// OnDiscountAt reports whether the discount applies at the given moment.
// A missing window bound is treated as open.
func (p *Product) OnDiscountAt(now time.Time) bool {
	if !p.OnDiscount {
		return false
	}
	if p.DiscountStart != nil && now.Before(*p.DiscountStart) {
		return false
	}
	if p.DiscountEnd != nil && now.After(*p.DiscountEnd) {
		return false
	}
	return true
}

// EffectivePrice returns the unit price a buyer pays at the given moment.
func (p *Product) EffectivePrice(now time.Time) decimal.Decimal {
	if p.OnDiscountAt(now) {
		return p.DiscountPrice
	}
	return p.Price
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	// ListDiscounted returns one page of products whose discount is active
	// at now, ordered by model number, plus the total number of such
	// products. A limit of zero returns every match.
	ListDiscounted(ctx context.Context, now time.Time, limit, offset int) ([]Product, int, error)
	// ListByCategory matches the category case-insensitively.
	ListByCategory(ctx context.Context, category string) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// TotalPages returns the number of pages of size limit needed to hold total
// items. A zero limit means a single page.
func TotalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	if limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// Stock is the only write access the order engine has to the catalog.
//
// Reserve must be a conditional atomic decrement: it either removes qty units
// or fails with *InsufficientStockError without touching the stock.
type Stock interface {
	Available(ctx context.Context, id string) (int, error)
	Reserve(ctx context.Context, id string, qty int) error
	Release(ctx context.Context, id string, qty int) error
}
