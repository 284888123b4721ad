package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "uq_attendance_principal_session"}

	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert record: %w", dup)))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("duplicate key value")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestRedis_Healthy(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr())
	t.Cleanup(func() { _ = r.Close() })

	ctx := context.Background()
	require.NoError(t, r.WaitReady(ctx))
	assert.True(t, r.Healthy(ctx))

	mr.Close()
	assert.False(t, r.Healthy(ctx))
}

func TestNilHandlesAreUnhealthy(t *testing.T) {
	var db *DB
	var r *Redis
	assert.False(t, db.Healthy(context.Background()))
	assert.False(t, r.Healthy(context.Background()))
	assert.NoError(t, db.Close())
	assert.NoError(t, r.Close())
}
