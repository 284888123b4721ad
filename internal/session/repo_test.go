package session

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{
	"id", "teacher_id", "classroom_id", "subject", "allowed_groups", "allowed_cohorts",
	"start_time", "end_time", "is_active", "current_token", "token_issued_at", "token_expires_at",
	"created_at",
	"name", "is_virtual", "latitude", "longitude", "radius_m",
}

func TestRepository_GetJoinsClassroom(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	exp := now.Add(30 * time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE l.id = $1")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
			"s-1", "t-1", "room-1", "Networks", []byte(`["CSE","ECE"]`), []byte(`[3]`),
			now, nil, true, "tok", now, exp,
			now,
			"LT-1", false, 12.97, 77.59, 40.0,
		))

	sess, err := NewRepository(db).Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, []string{"CSE", "ECE"}, sess.AllowedGroups)
	assert.Equal(t, []int{3}, sess.AllowedCohorts)
	assert.Equal(t, "tok", *sess.CurrentToken)
	require.NotNil(t, sess.Classroom)
	loc, ok := sess.Classroom.Location()
	require.True(t, ok)
	assert.InDelta(t, 12.97, loc.Lat, 1e-9)
	assert.Equal(t, 40.0, *sess.Classroom.RadiusMeters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE l.id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	sess, err := NewRepository(db).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestRepository_RotateTokenOnlyWhenActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	q := regexp.QuoteMeta("WHERE id = $1 AND is_active")
	mock.ExpectExec(q).WithArgs("s-1", "tok", now, now.Add(time.Minute)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("s-2", "tok", now, now.Add(time.Minute)).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRepository(db)
	ok, err := repo.RotateToken(context.Background(), "s-1", "tok", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RotateToken(context.Background(), "s-2", "tok", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertEncodesArrays(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lectures")).
		WithArgs("s-1", "t-1", nil, "Maths", `["All"]`, `[]`, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewRepository(db).Insert(context.Background(), Session{
		ID: "s-1", OwnerID: "t-1", Subject: "Maths",
		AllowedGroups: []string{AllGroups}, AllowedCohorts: []int{},
		StartTime: now, CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
