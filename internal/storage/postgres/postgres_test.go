package postgres

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/kart-store/internal/domain"
)

func TestStoreErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "nil", err: nil},
		{name: "plain", err: errors.New("boom")},
		{name: "canceled", err: context.Canceled},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}},
		{name: "connection failure", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, unavailable: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}, unavailable: true},
		{name: "wrapped", err: errors.Wrap(&pgconn.PgError{Code: pgerrcode.ConnectionException}, "query"), unavailable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storeErr(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(got, domain.ErrStoreUnavailable))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.True(t, retryable(errors.Wrap(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}, "commit")))
	assert.False(t, retryable(&pgconn.PgError{Code: pgerrcode.CheckViolation}))
	assert.False(t, retryable(errors.New("boom")))
}
