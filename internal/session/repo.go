package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectSession = `
	SELECT l.id, l.teacher_id, l.classroom_id, l.subject, l.allowed_groups, l.allowed_cohorts,
	       l.start_time, l.end_time, l.is_active, l.current_token, l.token_issued_at, l.token_expires_at,
	       l.created_at,
	       c.name, c.is_virtual, c.latitude, c.longitude, c.radius_m
	FROM lectures l
	LEFT JOIN classrooms c ON c.id = l.classroom_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                Session
		groups, cohorts  []byte
		roomName         sql.NullString
		roomVirtual      sql.NullBool
		lat, lon, radius sql.NullFloat64
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.ClassroomID, &s.Subject, &groups, &cohorts,
		&s.StartTime, &s.EndTime, &s.Active, &s.CurrentToken, &s.TokenIssuedAt, &s.TokenExpiresAt,
		&s.CreatedAt,
		&roomName, &roomVirtual, &lat, &lon, &radius)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(groups, &s.AllowedGroups); err != nil {
		return nil, fmt.Errorf("decode allowed_groups: %w", err)
	}
	if err := json.Unmarshal(cohorts, &s.AllowedCohorts); err != nil {
		return nil, fmt.Errorf("decode allowed_cohorts: %w", err)
	}
	if s.ClassroomID != nil {
		s.Classroom = &Classroom{
			ID:           *s.ClassroomID,
			Name:         roomName.String,
			Virtual:      roomVirtual.Bool,
			Latitude:     nullFloat(lat),
			Longitude:    nullFloat(lon),
			RadiusMeters: nullFloat(radius),
		}
	}
	return &s, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Insert writes a new session.
func (r *Repository) Insert(ctx context.Context, s Session) error {
	groups, err := json.Marshal(s.AllowedGroups)
	if err != nil {
		return err
	}
	cohorts, err := json.Marshal(s.AllowedCohorts)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lectures (id, teacher_id, classroom_id, subject, allowed_groups, allowed_cohorts,
		                      start_time, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, TRUE, $8)
	`, s.ID, s.OwnerID, s.ClassroomID, s.Subject, string(groups), string(cohorts), s.StartTime, s.CreatedAt)
	return err
}

// Get fetches a session and its classroom in one statement, so token and
// expiry always come from the same rotation.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, selectSession+` WHERE l.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActive returns open sessions, newest first.
func (r *Repository) ListActive(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, selectSession+` WHERE l.is_active ORDER BY l.start_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

// RotateToken replaces the current token of an active session. It reports
// false when the session is missing or already closed.
func (r *Repository) RotateToken(ctx context.Context, id, token string, issuedAt, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lectures
		SET current_token = $2, token_issued_at = $3, token_expires_at = $4
		WHERE id = $1 AND is_active
	`, id, token, issuedAt, expiresAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Close ends an active session. The token is dropped with it.
func (r *Repository) Close(ctx context.Context, id string, endTime time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lectures
		SET is_active = FALSE, end_time = $2, current_token = NULL
		WHERE id = $1 AND is_active
	`, id, endTime)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ClassroomExists reports whether a classroom id is registered.
func (r *Repository) ClassroomExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM classrooms WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
