// Package identity reads principals owned by the external user subsystem.
package identity

import (
	"context"
	"database/sql"
	"errors"
)

// Roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Principal is the read model of an authenticated user.
type Principal struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	RollNo   *string `json:"rollNo,omitempty"`
	Role     string  `json:"role"`
	Approved bool    `json:"approved"`
	Group    *string `json:"group,omitempty"`
	Cohort   *int    `json:"cohort,omitempty"`
	Section  *string `json:"section,omitempty"`
}

// Directory looks principals up in Postgres.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Principal returns nil, nil when the id is unknown.
func (d *Directory) Principal(ctx context.Context, id string) (*Principal, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, name, roll_no, role, is_approved, NULLIF(branch, ''), year, NULLIF(section, '')
		FROM users WHERE id = $1
	`, id)
	var p Principal
	var cohort sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.RollNo, &p.Role, &p.Approved, &p.Group, &cohort, &p.Section); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if cohort.Valid {
		c := int(cohort.Int64)
		p.Cohort = &c
	}
	return &p, nil
}
