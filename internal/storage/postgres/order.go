package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-store/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `id, user_id, items, shipping_address, payment_method, payment_status,
	order_status, subtotal, tax, shipping, total, payment_details, timeline, version,
	created_at, updated_at`

// OrderRepository implements order.Repository backed by PostgreSQL. Items,
// address, payment details and timeline are stored as JSONB documents.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	_, err = conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.UserID, docs.items, docs.address, string(o.PaymentMethod), string(o.PaymentStatus),
		string(o.Status), o.Subtotal, o.Tax, o.Shipping, o.Total, docs.payment, docs.timeline, o.Version,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return storeErr(errors.Wrapf(err, "create order %q", o.ID))
	}
	return nil
}

// Get returns order.ErrNotFound when no order has the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, storeErr(errors.Wrapf(err, "get order %q", id))
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, storeErr(errors.Wrapf(err, "get order %q", id))
	}
	return &o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "list user orders"))
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "scan orders"))
	}
	return orders, nil
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "list orders"))
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "scan orders"))
	}
	return orders, nil
}

// Update writes the mutable order fields when the stored version matches
// o.Version and bumps the version.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	timeline, err := json.Marshal(o.Timeline)
	if err != nil {
		return errors.Wrap(err, "marshal timeline")
	}

	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx,
		`UPDATE orders SET
			payment_status = $3,
			order_status   = $4,
			timeline       = $5,
			updated_at     = $6,
			version        = version + 1
		WHERE id = $1 AND version = $2`,
		o.ID, o.Version, string(o.PaymentStatus), string(o.Status), timeline, o.UpdatedAt,
	)
	if err != nil {
		return storeErr(errors.Wrapf(err, "update order %q", o.ID))
	}
	if tag.RowsAffected() == 1 {
		o.Version++
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return storeErr(errors.Wrapf(err, "check order %q", o.ID))
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

type orderDocs struct {
	items, address, payment, timeline []byte
}

func marshalOrderDocs(o *order.Order) (orderDocs, error) {
	var (
		d   orderDocs
		err error
	)
	if d.items, err = json.Marshal(o.Items); err != nil {
		return d, errors.Wrap(err, "marshal items")
	}
	if d.address, err = json.Marshal(o.ShippingAddress); err != nil {
		return d, errors.Wrap(err, "marshal shipping address")
	}
	if d.payment, err = json.Marshal(o.PaymentDetails); err != nil {
		return d, errors.Wrap(err, "marshal payment details")
	}
	if d.timeline, err = json.Marshal(o.Timeline); err != nil {
		return d, errors.Wrap(err, "marshal timeline")
	}
	return d, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                    order.Order
		items, address, payment, timeline    []byte
		paymentMethod, paymentStatus, status string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &items, &address, &paymentMethod, &paymentStatus,
		&status, &o.Subtotal, &o.Tax, &o.Shipping, &o.Total, &payment, &timeline, &o.Version,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal items")
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return o, errors.Wrap(err, "unmarshal shipping address")
	}
	if err := json.Unmarshal(payment, &o.PaymentDetails); err != nil {
		return o, errors.Wrap(err, "unmarshal payment details")
	}
	if err := json.Unmarshal(timeline, &o.Timeline); err != nil {
		return o, errors.Wrap(err, "unmarshal timeline")
	}
	return o, nil
}
