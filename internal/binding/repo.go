package binding

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists identity bindings in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const bindingColumns = `principal_id, device_id, network_address, reset_requested, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (*Binding, error) {
	var b Binding
	if err := row.Scan(&b.PrincipalID, &b.DeviceID, &b.NetworkAddress, &b.ResetRequested, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get returns the binding for a principal. A principal that never checked in
// gets an empty binding, not an error.
func (r *Repository) Get(ctx context.Context, principalID string) (*Binding, error) {
	b, err := scanBinding(r.db.QueryRowContext(ctx, `
		SELECT `+bindingColumns+`
		FROM identity_bindings WHERE principal_id = $1
	`, principalID))
	if errors.Is(err, sql.ErrNoRows) {
		return &Binding{PrincipalID: principalID}, nil
	}
	return b, err
}

// BindFirstUse commits every claimed fingerprint that is still unbound, in
// one statement. If any claimed kind is already bound to another value
// nothing is written, and the stored binding is returned so the caller can
// see the conflict with Claim.Conflict.
func (r *Repository) BindFirstUse(ctx context.Context, principalID string, claim Claim) (*Binding, error) {
	b, err := scanBinding(r.db.QueryRowContext(ctx, `
		INSERT INTO identity_bindings (principal_id, device_id, network_address, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (principal_id) DO UPDATE SET
			device_id = COALESCE(identity_bindings.device_id, EXCLUDED.device_id),
			network_address = COALESCE(identity_bindings.network_address, EXCLUDED.network_address),
			updated_at = NOW()
		WHERE (identity_bindings.device_id IS NULL OR EXCLUDED.device_id IS NULL
				OR identity_bindings.device_id = EXCLUDED.device_id)
			AND (identity_bindings.network_address IS NULL OR EXCLUDED.network_address IS NULL
				OR identity_bindings.network_address = EXCLUDED.network_address)
		RETURNING `+bindingColumns,
		principalID, nullString(claim.DeviceID), nullString(claim.NetworkAddress)))
	if errors.Is(err, sql.ErrNoRows) {
		// the conflict guard skipped the update
		return r.Get(ctx, principalID)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// RequestReset flags the binding for administrator review. The binding
// itself is left untouched.
func (r *Repository) RequestReset(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identity_bindings (principal_id, reset_requested, updated_at)
		VALUES ($1, TRUE, NOW())
		ON CONFLICT (principal_id) DO UPDATE SET reset_requested = TRUE, updated_at = NOW()
	`, principalID)
	return err
}

// Reset clears both fingerprints and the pending flag.
func (r *Repository) Reset(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE identity_bindings
		SET device_id = NULL, network_address = NULL, reset_requested = FALSE, updated_at = NOW()
		WHERE principal_id = $1
	`, principalID)
	return err
}
