package database

import (
	"io"
	"syscall"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsNetworkError(t *testing.T) {
	assert.True(t, IsNetworkError(io.EOF))
	assert.True(t, IsNetworkError(io.ErrUnexpectedEOF))
	assert.True(t, IsNetworkError(syscall.ECONNRESET))
	assert.True(t, IsNetworkError(syscall.ECONNREFUSED))
	assert.True(t, IsNetworkError(errors.Wrap(syscall.EPIPE, "writing batch")))

	assert.False(t, IsNetworkError(errors.New("value out of range")))
	assert.False(t, IsNetworkError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
}

func TestIsRetryablePostgresError(t *testing.T) {
	retryable := []string{
		pgerrcode.AdminShutdown,
		pgerrcode.CannotConnectNow,
		pgerrcode.ConnectionFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.SerializationFailure,
		pgerrcode.TooManyConnections,
	}
	for _, code := range retryable {
		assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: code}), "code %s should be retryable", code)
	}

	assert.True(t, IsRetryablePostgresError(errors.Wrap(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}, "inserting batch")))

	assert.False(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.NotNullViolation}))
	assert.False(t, IsRetryablePostgresError(errors.New("not a postgres error")))
}
