package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestPostgresErrorClassification(t *testing.T) {
	serialization := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	deadlock := &pq.Error{Code: "40P01", Message: "deadlock detected"}
	lockTimeout := &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"ux_room_applications_pending_student\"", ConstraintName: "ux_room_applications_pending_student"}

	assert.True(t, IsSerializationFailure(serialization))
	assert.False(t, IsSerializationFailure(deadlock))

	assert.True(t, IsDeadlock(deadlock))
	assert.False(t, IsDeadlock(lockTimeout))

	assert.True(t, IsLockTimeout(lockTimeout))
	assert.True(t, IsLockTimeout(&pq.Error{Code: "57014"}))
	assert.True(t, IsLockTimeout(errors.New("database is locked")))
	assert.False(t, IsLockTimeout(serialization))

	assert.True(t, IsUniqueViolation(unique, ""))
	assert.True(t, IsUniqueViolation(unique, "ux_room_applications_pending_student"))
	assert.False(t, IsUniqueViolation(unique, "ux_other"))
	assert.False(t, IsUniqueViolation(serialization, ""))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: students.student_number"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}
