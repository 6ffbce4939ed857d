package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-store/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "list cart lines"))
	}
	return collectLines(rows)
}

// Take deletes the user's lines and returns them. A concurrent Take blocks on
// the row locks and, once the first transaction commits, deletes nothing.
func (r *CartRepository) Take(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`WITH taken AS (
			DELETE FROM cart_items WHERE user_id = $1
			RETURNING product_id, quantity, seq
		)
		SELECT product_id, quantity FROM taken ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "take cart lines"))
	}
	return collectLines(rows)
}

func (r *CartRepository) Restore(ctx context.Context, userID string, lines []cart.Line) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(
			`INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id) DO UPDATE
				SET quantity = cart_items.quantity + EXCLUDED.quantity`,
			userID, l.ProductID, l.Quantity,
		)
	}
	if err := conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return storeErr(errors.Wrap(err, "restore cart lines"))
	}
	return nil
}

func collectLines(rows pgx.Rows) ([]cart.Line, error) {
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "scan cart lines"))
	}
	return lines, nil
}

// AddQuantity merges qty into the line in one statement; the conflict branch
// only fires while the merged quantity stays within limit.
func (r *CartRepository) AddQuantity(ctx context.Context, userID, productID string, qty, limit int) (int, bool, error) {
	if qty > limit {
		return 0, false, nil
	}

	q := conn(ctx, r.pool)
	var total int
	err := q.QueryRow(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE
			SET quantity = cart_items.quantity + EXCLUDED.quantity
			WHERE cart_items.quantity + EXCLUDED.quantity <= $4
		RETURNING quantity`,
		userID, productID, qty, limit,
	).Scan(&total)
	if err == nil {
		return total, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, storeErr(errors.Wrap(err, "add cart line"))
	}

	err = q.QueryRow(ctx,
		`SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	).Scan(&total)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, storeErr(errors.Wrap(err, "get cart line"))
	}
	return total, false, nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, qty int) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2`,
		userID, productID, qty,
	)
	if err != nil {
		return false, storeErr(errors.Wrap(err, "set cart line"))
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CartRepository) Delete(ctx context.Context, userID, productID string) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	)
	if err != nil {
		return storeErr(errors.Wrap(err, "delete cart line"))
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return storeErr(errors.Wrap(err, "clear cart"))
	}
	return nil
}
