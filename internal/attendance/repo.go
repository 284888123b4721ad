package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"qrattend/internal/store"
)

// Ledger persists attendance records in Postgres.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const selectRecord = `
	SELECT a.id, a.principal_id, a.session_id, l.subject, a.principal_name, a.roll_no,
	       a.branch, a.year, a.section, a.latitude, a.longitude,
	       a.device_id, a.network_address, a.user_agent, a.status, a.marked_at
	FROM attendance_records a
	JOIN lectures l ON l.id = a.session_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.PrincipalID, &r.SessionID, &r.Subject, &r.PrincipalName, &r.RollNo,
		&r.Group, &r.Cohort, &r.Section, &r.Latitude, &r.Longitude,
		&r.DeviceID, &r.NetworkAddress, &r.UserAgent, &r.Status, &r.MarkedAt)
	return r, err
}

// Insert writes a record. A second record for the same principal and session
// fails with ErrDuplicate.
func (l *Ledger) Insert(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusPresent
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, principal_id, session_id, principal_name, roll_no,
		                                branch, year, section, latitude, longitude,
		                                device_id, network_address, user_agent, status, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.ID, r.PrincipalID, r.SessionID, r.PrincipalName, r.RollNo,
		r.Group, r.Cohort, r.Section, r.Latitude, r.Longitude,
		r.DeviceID, r.NetworkAddress, r.UserAgent, r.Status, r.MarkedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return r, nil
}

// Find returns nil, nil when the principal has no record for the session.
func (l *Ledger) Find(ctx context.Context, principalID, sessionID string) (*Record, error) {
	r, err := scanRecord(l.db.QueryRowContext(ctx,
		selectRecord+` WHERE a.principal_id = $1 AND a.session_id = $2`, principalID, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// ListByPrincipal returns a principal's history, newest first.
func (l *Ledger) ListByPrincipal(ctx context.Context, principalID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.list(ctx, selectRecord+`
		WHERE a.principal_id = $1
		ORDER BY a.marked_at DESC
		LIMIT $2 OFFSET $3`, principalID, limit, offset)
}

// ListBySession returns every record of a session in check-in order.
func (l *Ledger) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return l.list(ctx, selectRecord+` WHERE a.session_id = $1 ORDER BY a.marked_at`, sessionID)
}

func (l *Ledger) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
