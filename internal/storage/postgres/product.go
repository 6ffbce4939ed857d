package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-store/internal/domain/product"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Stock      = (*ProductRepository)(nil)
)

const productColumns = `id, model_no, description, category, brand, color, image,
	price, stock, on_discount, discount_price, discount_start, discount_end`

// ProductRepository implements product.Repository and product.Stock backed by
// PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by model number.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY model_no`)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "list products"))
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "scan products"))
	}
	return products, nil
}

const activeDiscount = `on_discount
	AND (discount_start IS NULL OR discount_start <= $1)
	AND (discount_end IS NULL OR discount_end >= $1)`

// ListDiscounted returns a page of products with a discount active at now and
// the number of all such products.
func (r *ProductRepository) ListDiscounted(ctx context.Context, now time.Time, limit, offset int) ([]product.Product, int, error) {
	db := conn(ctx, r.pool)

	var total int
	if err := db.QueryRow(ctx,
		`SELECT count(*) FROM products WHERE `+activeDiscount, now,
	).Scan(&total); err != nil {
		return nil, 0, storeErr(errors.Wrap(err, "count discounted products"))
	}

	// LIMIT NULL returns every row.
	var pageSize *int
	if limit > 0 {
		pageSize = &limit
	}
	rows, err := db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+activeDiscount+`
		ORDER BY model_no LIMIT $2 OFFSET $3`,
		now, pageSize, offset,
	)
	if err != nil {
		return nil, 0, storeErr(errors.Wrap(err, "list discounted products"))
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, storeErr(errors.Wrap(err, "scan products"))
	}
	return products, total, nil
}

// ListByCategory returns the products of a category, ignoring case.
func (r *ProductRepository) ListByCategory(ctx context.Context, category string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE lower(category) = lower($1)
		ORDER BY model_no`, category)
	if err != nil {
		return nil, storeErr(errors.Wrapf(err, "list category %q", category))
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "scan products"))
	}
	return products, nil
}

// GetByID returns product.ErrNotFound when no product has the given id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, storeErr(errors.Wrapf(err, "get product %q", id))
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, storeErr(errors.Wrapf(err, "get product %q", id))
	}
	return &p, nil
}

// GetByIDs fetches products in a single query. Unknown ids are skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "get products by ids"))
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, storeErr(errors.Wrap(err, "scan products"))
	}
	return products, nil
}

// Available returns the current stock of a product.
func (r *ProductRepository) Available(ctx context.Context, id string) (int, error) {
	stock, _, err := r.stockOf(ctx, id)
	return stock, err
}

// Reserve decrements stock by qty in a single conditional update.
func (r *ProductRepository) Reserve(ctx context.Context, id string, qty int) error {
	var left int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`,
		id, qty,
	).Scan(&left)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return storeErr(errors.Wrapf(err, "reserve %q", id))
	}

	stock, modelNo, err := r.stockOf(ctx, id)
	if err != nil {
		return err
	}
	return &product.InsufficientStockError{ProductID: id, Name: modelNo, Available: stock}
}

// Release returns qty units to stock.
func (r *ProductRepository) Release(ctx context.Context, id string, qty int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`,
		id, qty,
	)
	if err != nil {
		return storeErr(errors.Wrapf(err, "release %q", id))
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces a catalog product, matching on model number.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (model_no) DO UPDATE SET
			description    = EXCLUDED.description,
			category       = EXCLUDED.category,
			brand          = EXCLUDED.brand,
			color          = EXCLUDED.color,
			image          = EXCLUDED.image,
			price          = EXCLUDED.price,
			stock          = EXCLUDED.stock,
			on_discount    = EXCLUDED.on_discount,
			discount_price = EXCLUDED.discount_price,
			discount_start = EXCLUDED.discount_start,
			discount_end   = EXCLUDED.discount_end,
			updated_at     = now()`,
		p.ID, p.ModelNo, p.Description, p.Category, p.Brand, p.Color, p.Image,
		p.Price, p.Stock, p.OnDiscount, p.DiscountPrice, p.DiscountStart, p.DiscountEnd,
	)
	if err != nil {
		return storeErr(errors.Wrapf(err, "upsert product %q", p.ModelNo))
	}
	return nil
}

func (r *ProductRepository) stockOf(ctx context.Context, id string) (int, string, error) {
	var (
		stock   int
		modelNo string
	)
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT stock, model_no FROM products WHERE id = $1`, id,
	).Scan(&stock, &modelNo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", product.ErrNotFound
		}
		return 0, "", storeErr(errors.Wrapf(err, "get stock %q", id))
	}
	return stock, modelNo, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.ModelNo, &p.Description, &p.Category, &p.Brand, &p.Color, &p.Image,
		&p.Price, &p.Stock, &p.OnDiscount, &p.DiscountPrice, &p.DiscountStart, &p.DiscountEnd,
	)
	return p, err
}
