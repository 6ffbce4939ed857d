package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-store/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an API key by its HMAC-SHA256 hash. It returns
// auth.ErrKeyNotFound when no key matches.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info auth.APIKeyInfo
		role string
	)
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, key_hash, name, user_id, role FROM api_keys WHERE key_hash = $1`, hash,
	).Scan(&info.ID, &info.KeyHash, &info.Name, &info.UserID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, storeErr(errors.Wrap(err, "find api key by hash"))
	}
	info.Role = auth.Role(role)
	return &info, nil
}

// Upsert stores a key, replacing any key with the same id.
func (r *APIKeyRepository) Upsert(ctx context.Context, info auth.APIKeyInfo) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, name, user_id, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name     = EXCLUDED.name,
			user_id  = EXCLUDED.user_id,
			role     = EXCLUDED.role`,
		info.ID, info.KeyHash, info.Name, info.UserID, string(info.Role),
	)
	if err != nil {
		return storeErr(errors.Wrapf(err, "upsert api key %q", info.ID))
	}
	return nil
}
