package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-store/internal/domain/product"
)

// --- Mock implementations ---

type mockCatalog struct {
	byID map[string]*product.Product
}

func (m *mockCatalog) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockCatalog) ListDiscounted(context.Context, time.Time, int, int) ([]product.Product, int, error) {
	return nil, 0, nil
}

func (m *mockCatalog) ListByCategory(context.Context, string) ([]product.Product, error) {
	return nil, nil
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memRepo struct {
	mu    sync.Mutex
	lines map[string][]Line
}

func newMemRepo() *memRepo {
	return &memRepo{lines: make(map[string][]Line)}
}

func (m *memRepo) Lines(_ context.Context, userID string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Line(nil), m.lines[userID]...), nil
}

func (m *memRepo) AddQuantity(_ context.Context, userID, productID string, qty, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.lines[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			if lines[i].Quantity+qty > limit {
				return lines[i].Quantity, false, nil
			}
			lines[i].Quantity += qty
			return lines[i].Quantity, true, nil
		}
	}
	if qty > limit {
		return 0, false, nil
	}
	m.lines[userID] = append(lines, Line{ProductID: productID, Quantity: qty})
	return qty, true, nil
}

func (m *memRepo) SetQuantity(_ context.Context, userID, productID string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lines[userID] {
		if m.lines[userID][i].ProductID == productID {
			m.lines[userID][i].Quantity = qty
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) Delete(_ context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.lines[userID][:0]
	for _, l := range m.lines[userID] {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	m.lines[userID] = kept
	return nil
}

func (m *memRepo) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, userID)
	return nil
}

func (m *memRepo) Take(_ context.Context, userID string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.lines[userID]
	delete(m.lines, userID)
	return lines, nil
}

func (m *memRepo) Restore(_ context.Context, userID string, lines []Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
next:
	for _, l := range lines {
		for i := range m.lines[userID] {
			if m.lines[userID][i].ProductID == l.ProductID {
				m.lines[userID][i].Quantity += l.Quantity
				continue next
			}
		}
		m.lines[userID] = append(m.lines[userID], l)
	}
	return nil
}

type mapCache struct {
	data    map[string][]byte
	deletes int
	failAll bool
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.failAll {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte) error {
	if c.failAll {
		return errors.New("cache down")
	}
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.deletes++
	if c.failAll {
		return errors.New("cache down")
	}
	delete(c.data, key)
	return nil
}

// --- Helpers ---

func newCatalog(products ...product.Product) *mockCatalog {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockCatalog{byID: byID}
}

func newTestProduct(id string, price string, stock int) product.Product {
	return product.Product{
		ID:      id,
		ModelNo: "model-" + id,
		Price:   decimal.RequireFromString(price),
		Stock:   stock,
	}
}

// --- Tests ---

func TestAddItem_MergesExistingLine(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, newCatalog(newTestProduct("p1", "10.00", 5)), nil)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))

	lines, err := svc.Lines(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestAddItem_AppendsNewLine(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, newCatalog(
		newTestProduct("p1", "10.00", 5),
		newTestProduct("p2", "3.00", 5),
	), nil)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	require.NoError(t, svc.AddItem(ctx, "u1", "p2", 1))

	lines, err := svc.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 1}}, lines)
}

func TestAddItem_ProductNotFound(t *testing.T) {
	svc := NewService(newMemRepo(), newCatalog(), nil)

	err := svc.AddItem(context.Background(), "u1", "missing", 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestAddItem_ExceedsStockWithExistingLine(t *testing.T) {
	svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 3)), nil)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))

	err := svc.AddItem(ctx, "u1", "p1", 2)
	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p1", stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Available)

	lines, err := svc.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 3)), nil)

	err := svc.AddItem(context.Background(), "u1", "p1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("updates line", func(t *testing.T) {
		svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), nil)
		require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
		require.NoError(t, svc.SetQuantity(ctx, "u1", "p1", 4))

		lines, err := svc.Lines(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 4, lines[0].Quantity)
	})

	t.Run("rejects zero", func(t *testing.T) {
		svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), nil)
		require.ErrorIs(t, svc.SetQuantity(ctx, "u1", "p1", 0), ErrInvalidQuantity)
	})

	t.Run("over stock", func(t *testing.T) {
		svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), nil)
		require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))

		var stockErr *product.InsufficientStockError
		require.ErrorAs(t, svc.SetQuantity(ctx, "u1", "p1", 6), &stockErr)
	})

	t.Run("missing line", func(t *testing.T) {
		svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), nil)
		require.ErrorIs(t, svc.SetQuantity(ctx, "u1", "p1", 2), ErrLineNotFound)
	})
}

func TestRemoveItem_Idempotent(t *testing.T) {
	svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), nil)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	require.NoError(t, svc.RemoveItem(ctx, "u1", "p1"))
	require.NoError(t, svc.RemoveItem(ctx, "u1", "p1"))

	lines, err := svc.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSnapshot_UsesEffectivePrice(t *testing.T) {
	discounted := newTestProduct("p2", "20.00", 5)
	discounted.OnDiscount = true
	discounted.DiscountPrice = decimal.RequireFromString("15.00")

	svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5), discounted), nil)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, svc.AddItem(ctx, "u1", "p2", 1))

	snap, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	assert.True(t, decimal.RequireFromString("35.00").Equal(snap.TotalPrice), "total %s", snap.TotalPrice)
	assert.Equal(t, 3, snap.TotalItems)
	assert.True(t, decimal.RequireFromString("15.00").Equal(snap.Items[1].UnitPrice))
}

func TestSnapshot_SkipsVanishedProducts(t *testing.T) {
	catalog := newCatalog(newTestProduct("p1", "10.00", 5), newTestProduct("p2", "1.00", 5))
	svc := NewService(newMemRepo(), catalog, nil)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	require.NoError(t, svc.AddItem(ctx, "u1", "p2", 1))
	delete(catalog.byID, "p2")

	snap, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 1, snap.TotalItems)
}

func TestSnapshot_Empty(t *testing.T) {
	svc := NewService(newMemRepo(), newCatalog(), nil)

	snap, err := svc.Snapshot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	assert.True(t, snap.TotalPrice.IsZero())
	assert.Zero(t, snap.TotalItems)
}

func TestSnapshot_ServedFromCacheUntilMutation(t *testing.T) {
	cache := newMapCache()
	catalog := newCatalog(newTestProduct("p1", "10.00", 5))
	svc := NewService(newMemRepo(), catalog, cache)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))

	first, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, cache.data, "cart:u1")

	// A price change is not visible while the projection is cached.
	catalog.byID["p1"].Price = decimal.RequireFromString("99.00")
	cached, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.TotalPrice.Equal(cached.TotalPrice))

	// Any mutation drops the cached projection.
	require.NoError(t, svc.SetQuantity(ctx, "u1", "p1", 2))
	assert.NotContains(t, cache.data, "cart:u1")

	fresh, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("198.00").Equal(fresh.TotalPrice))
}

func TestSnapshot_CacheFailuresAreIgnored(t *testing.T) {
	cache := newMapCache()
	cache.failAll = true
	svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), cache)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, svc.RemoveItem(ctx, "u1", "p2"))
	require.NoError(t, svc.Clear(ctx, "u1"))
	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))

	snap, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalItems)
	assert.Equal(t, 4, cache.deletes)
}

func TestSnapshot_CorruptCacheEntryRecomputed(t *testing.T) {
	cache := newMapCache()
	svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), cache)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	cache.data["cart:u1"] = []byte("{not json")

	snap, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalItems)
}

func TestTakeAndRestore(t *testing.T) {
	cache := newMapCache()
	svc := NewService(newMemRepo(), newCatalog(
		newTestProduct("p1", "10.00", 5),
		newTestProduct("p2", "2.00", 5),
	), cache)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, svc.AddItem(ctx, "u1", "p2", 1))
	_, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, cache.data, "cart:u1")

	taken, err := svc.Take(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}, taken)
	assert.NotContains(t, cache.data, "cart:u1")

	again, err := svc.Take(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, again, "a claimed cart is handed out once")

	// Added while the cart was claimed.
	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	_, err = svc.Snapshot(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Restore(ctx, "u1", taken))
	assert.NotContains(t, cache.data, "cart:u1")

	lines, err := svc.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 1}}, lines)
}

func TestInvalidate(t *testing.T) {
	cache := newMapCache()
	svc := NewService(newMemRepo(), newCatalog(newTestProduct("p1", "10.00", 5)), cache)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "u1", "p1", 1))
	_, err := svc.Snapshot(ctx, "u1")
	require.NoError(t, err)

	svc.Invalidate(ctx, "u1")
	assert.NotContains(t, cache.data, "cart:u1")
}
