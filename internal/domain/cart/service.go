package cart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/product"
)

// Service encapsulates cart business logic.
type Service struct {
	repo    Repository
	catalog product.Repository
	cache   Cache
	now     func() time.Time
}

// NewService creates a cart Service. A nil cache disables caching.
func NewService(repo Repository, catalog product.Repository, cache Cache) *Service {
	if cache == nil {
		cache = nopCache{}
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   cache,
		now:     time.Now,
	}
}

// AddItem adds qty units of a product, merging into an existing line.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}

	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	if qty > p.Stock {
		return &product.InsufficientStockError{ProductID: p.ID, Name: p.ModelNo, Available: p.Stock}
	}

	_, ok, err := s.repo.AddQuantity(ctx, userID, productID, qty, p.Stock)
	if err != nil {
		return errors.Wrap(err, "add cart line")
	}
	if !ok {
		return &product.InsufficientStockError{ProductID: p.ID, Name: p.ModelNo, Available: p.Stock}
	}

	s.invalidate(ctx, userID)
	return nil
}

// SetQuantity overwrites the quantity of an existing line.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}

	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	if qty > p.Stock {
		return &product.InsufficientStockError{ProductID: p.ID, Name: p.ModelNo, Available: p.Stock}
	}

	found, err := s.repo.SetQuantity(ctx, userID, productID, qty)
	if err != nil {
		return errors.Wrap(err, "set cart line")
	}
	if !found {
		return ErrLineNotFound
	}

	s.invalidate(ctx, userID)
	return nil
}

// RemoveItem drops the line for a product. Removing an absent line is a no-op.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	if err := s.repo.Delete(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	s.invalidate(ctx, userID)
	return nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	s.invalidate(ctx, userID)
	return nil
}

// Take claims the whole cart for checkout: the lines are removed and
// returned atomically. Inside a store transaction the claim holds until
// commit, and a concurrent Take returns no lines.
func (s *Service) Take(ctx context.Context, userID string) ([]Line, error) {
	lines, err := s.repo.Take(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "take cart lines")
	}
	s.invalidate(ctx, userID)
	return lines, nil
}

// Restore puts lines obtained from Take back into the cart.
func (s *Service) Restore(ctx context.Context, userID string, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	if err := s.repo.Restore(ctx, userID, lines); err != nil {
		return errors.Wrap(err, "restore cart lines")
	}
	s.invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached snapshot. Callers that changed the cart inside
// a store transaction call it again after commit, since a concurrent
// Snapshot may have cached the pre-commit lines.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	s.invalidate(ctx, userID)
}

// Lines returns the raw stored lines, bypassing the cache.
func (s *Service) Lines(ctx context.Context, userID string) ([]Line, error) {
	lines, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	return lines, nil
}

// Snapshot returns the cart joined with current catalog prices. A cached
// projection is served when available.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	if snap, ok := s.cached(ctx, userID); ok {
		return snap, nil
	}

	lines, err := s.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap, err := s.project(ctx, lines)
	if err != nil {
		return nil, err
	}

	s.store(ctx, userID, snap)
	return snap, nil
}

func (s *Service) project(ctx context.Context, lines []Line) (*Snapshot, error) {
	snap := &Snapshot{
		Items:      make([]Item, 0, len(lines)),
		TotalPrice: decimal.Zero,
	}
	if len(lines) == 0 {
		return snap, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	fetched, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get cart products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	now := s.now()
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			// Removed from the catalog; checkout reports it as unavailable.
			continue
		}
		price := p.EffectivePrice(now)
		total := price.Mul(decimal.NewFromInt(int64(l.Quantity)))

		snap.Items = append(snap.Items, Item{
			Product:   p,
			Quantity:  l.Quantity,
			UnitPrice: price,
			LineTotal: total,
		})
		snap.TotalPrice = snap.TotalPrice.Add(total)
		snap.TotalItems += l.Quantity
	}
	return snap, nil
}

func (s *Service) cached(ctx context.Context, userID string) (*Snapshot, bool) {
	raw, ok, err := s.cache.Get(ctx, cacheKey(userID))
	if err != nil {
		zctx.From(ctx).Warn("Cart cache read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		zctx.From(ctx).Warn("Cart cache entry corrupted", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return &snap, true
}

func (s *Service) store(ctx context.Context, userID string, snap *Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		zctx.From(ctx).Warn("Cart snapshot encode failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cacheKey(userID), raw); err != nil {
		zctx.From(ctx).Warn("Cart cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, cacheKey(userID)); err != nil {
		zctx.From(ctx).Warn("Cart cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
