// Package cart implements the per-user shopping cart aggregate.
//
// A cart stores only (product, quantity) pairs. Prices and totals are a
// projection computed from the live catalog every time a snapshot is taken,
// so a cart never carries stale prices into checkout.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/product"
)

var (
	// ErrLineNotFound is returned when the cart has no line for a product.
	ErrLineNotFound = errors.New("item not found in cart")
	// ErrInvalidQuantity is returned for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Line is a single stored cart entry.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Item is a cart line joined with its current catalog data.
type Item struct {
	Product   product.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Snapshot is the derived view of a cart.
type Snapshot struct {
	Items      []Item          `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	TotalItems int             `json:"total_items"`
}

// Repository persists cart lines.
type Repository interface {
	// Lines returns the user's cart lines in insertion order.
	Lines(ctx context.Context, userID string) ([]Line, error)
	// AddQuantity merges qty into the line for productID, creating it when
	// absent, as long as the resulting quantity does not exceed limit. The
	// check and the write happen atomically. It returns the new quantity and
	// false when the limit would have been exceeded.
	AddQuantity(ctx context.Context, userID, productID string, qty, limit int) (int, bool, error)
	// SetQuantity overwrites the quantity of an existing line and reports
	// whether the line existed.
	SetQuantity(ctx context.Context, userID, productID string, qty int) (bool, error)
	// Delete removes a line. Deleting an absent line is not an error.
	Delete(ctx context.Context, userID, productID string) error
	// Clear removes every line of the user's cart.
	Clear(ctx context.Context, userID string) error
	// Take removes and returns every line of the user's cart in one atomic
	// step, so concurrent callers never receive the same lines.
	Take(ctx context.Context, userID string) ([]Line, error)
	// Restore merges lines back into the user's cart, adding quantities to
	// lines that were created in the meantime.
	Restore(ctx context.Context, userID string, lines []Line) error
}

// Cache is a best-effort byte cache. Implementations own the expiry policy.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (nopCache) Set(context.Context, string, []byte) error         { return nil }
func (nopCache) Delete(context.Context, string) error              { return nil }

func cacheKey(userID string) string {
	return "cart:" + userID
}
