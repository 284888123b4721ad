package policy

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists the policy singleton in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Load returns the stored policy, or ok=false when none has been saved yet.
func (r *Repository) Load(ctx context.Context) (Policy, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT geo_fencing_enabled, device_binding_enabled, ip_binding_enabled,
		       qr_expiry_enabled, qr_expiry_seconds, geo_fence_radius_m, updated_at
		FROM security_policy WHERE id = 1
	`)
	var p Policy
	err := row.Scan(&p.GeoFencingEnabled, &p.DeviceBindingEnabled, &p.IPBindingEnabled,
		&p.QRExpiryEnabled, &p.QRExpirySeconds, &p.GeoFenceRadiusMeters, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Policy{}, false, nil
		}
		return Policy{}, false, err
	}
	return p, true, nil
}

// Save upserts the singleton row and returns what was stored.
func (r *Repository) Save(ctx context.Context, p Policy) (Policy, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_policy (id, geo_fencing_enabled, device_binding_enabled, ip_binding_enabled,
		                             qr_expiry_enabled, qr_expiry_seconds, geo_fence_radius_m, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			geo_fencing_enabled = EXCLUDED.geo_fencing_enabled,
			device_binding_enabled = EXCLUDED.device_binding_enabled,
			ip_binding_enabled = EXCLUDED.ip_binding_enabled,
			qr_expiry_enabled = EXCLUDED.qr_expiry_enabled,
			qr_expiry_seconds = EXCLUDED.qr_expiry_seconds,
			geo_fence_radius_m = EXCLUDED.geo_fence_radius_m,
			updated_at = EXCLUDED.updated_at
	`, p.GeoFencingEnabled, p.DeviceBindingEnabled, p.IPBindingEnabled,
		p.QRExpiryEnabled, p.QRExpirySeconds, p.GeoFenceRadiusMeters, p.UpdatedAt)
	if err != nil {
		return Policy{}, err
	}
	return p, nil
}
