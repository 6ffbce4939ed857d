package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/product"
)

const maxTransitionAttempts = 5

// CreateRequest holds the checkout input. The monetary fields are recorded
// as given; the cart lines are priced from the live catalog.
type CreateRequest struct {
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	// PaymentStatus overrides the method-derived initial status when set.
	PaymentStatus PaymentStatus
	Payment       PaymentInput

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// PaymentSummary is the admin view of an order's payment.
type PaymentSummary struct {
	OrderID       string
	UserID        string
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Details       PaymentDetails
	Timeline      []TimelineEntry
}

// Options configures optional Service collaborators.
type Options struct {
	// Transactor makes checkout and transitions a single store transaction.
	// Without it reservations are undone by compensating releases.
	Transactor     Transactor
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	DefaultCountry string
	Now            func() time.Time
}

func (o *Options) setDefaults() {
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.DefaultCountry == "" {
		o.DefaultCountry = "Bangladesh"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service is the order engine.
type Service struct {
	carts   Carts
	catalog product.Repository
	stock   product.Stock
	orders  Repository

	tx             Transactor
	now            func() time.Time
	defaultCountry string

	tracer        trace.Tracer
	created       metric.Int64Counter
	cancelled     metric.Int64Counter
	compensations metric.Int64Counter
}

// NewService creates an order Service.
func NewService(
	carts Carts,
	catalog product.Repository,
	stock product.Stock,
	orders Repository,
	opts Options,
) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("kart-store/order")
	s := &Service{
		carts:          carts,
		catalog:        catalog,
		stock:          stock,
		orders:         orders,
		tx:             opts.Transactor,
		now:            opts.Now,
		defaultCountry: opts.DefaultCountry,
		tracer:         opts.TracerProvider.Tracer("kart-store/order"),
	}

	var err error
	if s.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.cancelled, err = meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled with stock restored"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.cancelled counter")
	}
	if s.compensations, err = meter.Int64Counter("orders.stock_compensations",
		metric.WithDescription("Checkouts whose reservations were released after a failure"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.stock_compensations counter")
	}

	return s, nil
}

// Create converts the caller's cart into an order. Either every cart line is
// reserved, the order is stored and the cart is emptied, or stock is left as
// it was.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(attribute.String("user.id", p.UserID)),
	)
	defer func() { endSpan(span, rerr) }()

	if p.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	var created *Order
	err := s.atomically(ctx, func(ctx context.Context) error {
		o, err := s.checkout(ctx, p.UserID, req)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	// A snapshot read while the transaction was open may have cached the
	// claimed lines again.
	s.carts.Invalidate(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(created.PaymentMethod)),
	))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.Int("items", len(created.Items)),
	)
	return created, nil
}

func (s *Service) normalize(req *CreateRequest) error {
	if !req.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if req.PaymentStatus != "" && !req.PaymentStatus.Valid() {
		return errors.Wrapf(ErrInvalidStatus, "payment status %q", req.PaymentStatus)
	}

	a := &req.ShippingAddress
	for _, field := range []*string{&a.Street, &a.City, &a.State, &a.ZipCode, &a.Country} {
		*field = strings.TrimSpace(*field)
	}
	if a.Street == "" || a.City == "" || a.State == "" || a.ZipCode == "" {
		return ErrInvalidAddress
	}
	if a.Country == "" {
		a.Country = s.defaultCountry
	}
	return nil
}

// checkout claims the cart before anything else, so two concurrent checkouts
// of the same cart cannot both see its lines.
func (s *Service) checkout(ctx context.Context, userID string, req CreateRequest) (_ *Order, rerr error) {
	lines, err := s.carts.Take(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "claim cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	defer func() {
		if rerr != nil {
			s.returnCart(ctx, userID, lines)
		}
	}()

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
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductUnavailableError{ProductID: l.ProductID}
		}
		if l.Quantity > p.Stock {
			return nil, &product.InsufficientStockError{ProductID: p.ID, Name: p.ModelNo, Available: p.Stock}
		}
		items = append(items, Item{
			ProductID: p.ID,
			ModelNo:   p.ModelNo,
			Quantity:  l.Quantity,
			UnitPrice: p.EffectivePrice(now),
		})
	}

	reserved, err := s.reserve(ctx, items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   initialPaymentStatus(req.PaymentMethod, req.PaymentStatus),
		Status:          StatusProcessing,
		Subtotal:        req.Subtotal,
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		Total:           req.Total,
		PaymentDetails:  buildPaymentDetails(req.PaymentMethod, req.Payment, now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.appendTimeline(TimelineCreated, "Order placed successfully", now)

	if err := s.orders.Create(ctx, o); err != nil {
		s.compensate(ctx, reserved)
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// returnCart puts claimed lines back after a failed checkout. Inside a
// transaction the rollback does it instead.
func (s *Service) returnCart(ctx context.Context, userID string, lines []cart.Line) {
	if s.tx != nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.carts.Restore(ctx, userID, lines); err != nil {
		zctx.From(ctx).Error("Cart not restored after failed checkout",
			zap.String("user_id", userID),
			zap.Int("lines", len(lines)),
			zap.Error(err),
		)
	}
}

// reserve takes stock for every item in product id order. On failure the
// lines reserved so far are released before returning.
func (s *Service) reserve(ctx context.Context, items []Item) ([]Item, error) {
	ordered := slices.Clone(items)
	slices.SortFunc(ordered, func(a, b Item) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})

	reserved := make([]Item, 0, len(ordered))
	for _, it := range ordered {
		err := s.stock.Reserve(ctx, it.ProductID, it.Quantity)
		if err == nil {
			reserved = append(reserved, it)
			continue
		}

		s.compensate(ctx, reserved)

		var stockErr *product.InsufficientStockError
		switch {
		case errors.Is(err, product.ErrNotFound):
			return nil, &ProductUnavailableError{ProductID: it.ProductID}
		case errors.As(err, &stockErr):
			if stockErr.Name == "" {
				stockErr.Name = it.ModelNo
			}
			return nil, stockErr
		default:
			return nil, errors.Wrapf(err, "reserve %s", it.ProductID)
		}
	}
	return reserved, nil
}

// compensate releases reservations taken outside a transaction. Inside a
// transaction the rollback restores stock instead.
func (s *Service) compensate(ctx context.Context, reserved []Item) {
	if s.tx != nil || len(reserved) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.compensations.Add(ctx, 1)
	for _, it := range reserved {
		if err := s.stock.Release(ctx, it.ProductID, it.Quantity); err != nil {
			zctx.From(ctx).Error("Stock compensation failed",
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
}

// ListMine returns the caller's orders, newest first.
func (s *Service) ListMine(ctx context.Context, p auth.Principal) ([]Order, error) {
	if p.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	orders, err := s.orders.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// Get returns an order owned by the caller. Admins may read any order.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	if p.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != p.UserID && !p.IsAdmin() {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListAll returns every order. Admin only.
func (s *Service) ListAll(ctx context.Context, p auth.Principal) ([]Order, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// PaymentDetails returns the payment view of an order. Admin only.
func (s *Service) PaymentDetails(ctx context.Context, p auth.Principal, id string) (*PaymentSummary, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return &PaymentSummary{
		OrderID:       o.ID,
		UserID:        o.UserID,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Details:       o.PaymentDetails,
		Timeline:      o.Timeline,
	}, nil
}

// ValidatePayment checks the format of raw payment data and returns a fresh
// transaction id when it is acceptable.
func (s *Service) ValidatePayment(ctx context.Context, method PaymentMethod, data PaymentData) (string, error) {
	if err := validatePaymentData(method, data); err != nil {
		zctx.From(ctx).Debug("Payment data rejected", zap.String("method", string(method)), zap.Error(err))
		return "", err
	}
	return newTransactionID(s.now()), nil
}

// UpdateStatus applies an admin status change. Cancelling restores stock.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, u StatusUpdate) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(u.OrderStatus)),
		attribute.String("order.payment_status", string(u.PaymentStatus)),
	))
	defer func() { endSpan(span, rerr) }()

	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}

	o, err := s.transition(ctx, id, func(o *Order, now time.Time) (bool, error) {
		return applyAdminUpdate(o, u, now)
	})
	if err != nil {
		return nil, err
	}

	if u.OrderStatus == StatusCancelled {
		s.cancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("by", "admin")))
	}
	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", o.ID),
		zap.String("admin_id", p.UserID),
		zap.String("status", string(o.Status)),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return o, nil
}

// Cancel cancels a processing order on behalf of its owner and restores its
// stock. Cancelling twice yields *InvalidTransitionError.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(
		attribute.String("order.id", id),
	))
	defer func() { endSpan(span, rerr) }()

	if p.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}

	o, err := s.transition(ctx, id, func(o *Order, now time.Time) (bool, error) {
		if o.UserID != p.UserID {
			return false, ErrNotFound
		}
		if err := applyCustomerCancel(o, now); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.cancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("by", "customer")))
	zctx.From(ctx).Info("Order cancelled by customer",
		zap.String("order_id", o.ID),
		zap.String("user_id", p.UserID),
	)
	return o, nil
}

// transition loads the order, applies fn to a copy and stores it with a
// version check, retrying on concurrent modification. When fn reports a
// restock, the order's lines are released only after the store accepted the
// new state, so at most one caller ever restores a given order.
func (s *Service) transition(
	ctx context.Context,
	id string,
	fn func(o *Order, now time.Time) (restock bool, err error),
) (*Order, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		var updated *Order
		err := s.atomically(ctx, func(ctx context.Context) error {
			current, err := s.orders.Get(ctx, id)
			if err != nil {
				return errors.Wrap(err, "get order")
			}

			now := s.now()
			next := current.clone()
			restock, err := fn(next, now)
			if err != nil {
				return err
			}
			next.UpdatedAt = now

			if err := s.orders.Update(ctx, next); err != nil {
				return errors.Wrap(err, "update order")
			}
			if restock {
				if err := s.restock(ctx, current, next); err != nil {
					return err
				}
			}
			updated = next
			return nil
		})
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, ErrConflict):
			zctx.From(ctx).Debug("Order changed concurrently, retrying",
				zap.String("order_id", id),
				zap.Int("attempt", attempt+1),
			)
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrConflict
}

// restock returns every line of next to the catalog. Products that no longer
// exist are skipped. Outside a transaction a failed release undoes the
// releases already made and puts prev back.
func (s *Service) restock(ctx context.Context, prev, next *Order) error {
	released := make([]Item, 0, len(next.Items))
	for _, it := range next.Items {
		err := s.stock.Release(ctx, it.ProductID, it.Quantity)
		switch {
		case err == nil:
			released = append(released, it)
		case errors.Is(err, product.ErrNotFound):
			zctx.From(ctx).Warn("Skipping stock release for removed product",
				zap.String("order_id", next.ID),
				zap.String("product_id", it.ProductID),
			)
		default:
			if s.tx == nil {
				s.revertRestock(ctx, prev, next, released)
			}
			return errors.Wrapf(err, "release %s", it.ProductID)
		}
	}
	return nil
}

func (s *Service) revertRestock(ctx context.Context, prev, next *Order, released []Item) {
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx).With(zap.String("order_id", next.ID))

	for _, it := range released {
		if err := s.stock.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			lg.Error("Failed to re-reserve stock after partial restore",
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}

	restored := prev.clone()
	restored.Version = next.Version
	if err := s.orders.Update(ctx, restored); err != nil {
		lg.Error("Failed to revert order after partial restore", zap.Error(err))
	}
}

func (s *Service) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.InTx(ctx, fn)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
