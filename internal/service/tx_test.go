package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zelapay/ledgercore/internal/domain"
)

func TestValidateTransfer(t *testing.T) {
	ten := decimal.NewFromInt(10)

	assert.NoError(t, validateTransfer("a", "b", ten))
	assert.ErrorIs(t, validateTransfer("a", "b", decimal.Zero), domain.ErrInvalidAmount)
	assert.ErrorIs(t, validateTransfer("a", "b", decimal.NewFromInt(-5)), domain.ErrInvalidAmount)
	assert.ErrorIs(t, validateTransfer("a", "a", ten), domain.ErrSelfTransfer)
}

func TestValidateRequest(t *testing.T) {
	ten := decimal.NewFromInt(10)

	assert.NoError(t, validateRequest("a", "b", ten))
	assert.ErrorIs(t, validateRequest("a", "b", decimal.Zero), domain.ErrInvalidAmount)
	assert.ErrorIs(t, validateRequest("a", "a", ten), domain.ErrSelfRequest)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, isRetryable(errChainIDCollision))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(domain.ErrInsufficientFunds))
	assert.False(t, isRetryable(errors.New("boom")))
}

func TestWithRetrySucceedsAfterConflict(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryExhaustsToConcurrencyConflict(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func(context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "40P01"}
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.Equal(t, maxAttempts, attempts)
}

func TestWithRetryDoesNotRetryBusinessErrors(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func(context.Context) error {
		attempts++
		return domain.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 1, attempts)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, isUniqueViolation(errors.New("nope")))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, isForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isForeignKeyViolation(errors.New("nope")))
}
