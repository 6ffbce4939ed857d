package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/order"
)

var _ order.Transactor = (*TxManager)(nil)

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool.
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// TxManager runs functions inside a database transaction. Repositories from
// this package pick the transaction up from the context.
type TxManager struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewTxManager returns a TxManager that retries serialization failures and
// deadlocks with the given backoff delays.
func NewTxManager(pool *pgxpool.Pool, delays ...time.Duration) *TxManager {
	if len(delays) == 0 {
		delays = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond}
	}
	return &TxManager{pool: pool, delays: delays}
}

// InTx runs fn in a transaction, committing when fn returns nil. A nested
// call joins the outer transaction.
func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = m.run(ctx, fn)
		if err == nil || !retryable(err) || attempt >= len(m.delays) {
			break
		}

		zctx.From(ctx).Debug("Retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return storeErr(ctx.Err())
		case <-time.After(m.delays[attempt]):
		}
	}
	return storeErr(err)
}

func (m *TxManager) run(ctx context.Context, fn func(ctx context.Context) error) (rerr error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if rerr == nil {
			return
		}
		// The caller's context may already be done; rollback must still reach
		// the server.
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}
