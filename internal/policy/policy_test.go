package policy

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaults(t *testing.T) {
	p := Defaults()
	assert.True(t, p.GeoFencingEnabled)
	assert.True(t, p.DeviceBindingEnabled)
	assert.True(t, p.IPBindingEnabled)
	assert.True(t, p.QRExpiryEnabled)
	assert.Equal(t, 30*time.Second, p.QRLifetime())
	assert.Equal(t, 50.0, p.GeoFenceRadiusMeters)
	assert.NoError(t, p.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(p *Policy)
		wantFields []string
	}{
		{"zero radius", func(p *Policy) { p.GeoFenceRadiusMeters = 0 }, []string{"geoFenceRadius"}},
		{"negative lifetime", func(p *Policy) { p.QRExpirySeconds = -1 }, []string{"qrExpirySeconds"}},
		{"lifetime above a day", func(p *Policy) { p.QRExpirySeconds = 86401 }, []string{"qrExpirySeconds"}},
		{"both invalid", func(p *Policy) {
			p.QRExpirySeconds = 0
			p.GeoFenceRadiusMeters = -3
		}, []string{"qrExpirySeconds", "geoFenceRadius"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Defaults()
			tt.mutate(&p)

			err := p.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)

			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

type memStore struct {
	p       Policy
	ok      bool
	saves   int
	loadErr error
}

func (m *memStore) Load(context.Context) (Policy, bool, error) { return m.p, m.ok, m.loadErr }

func (m *memStore) Save(_ context.Context, p Policy) (Policy, error) {
	m.p, m.ok = p, true
	m.saves++
	return p, nil
}

func TestService_GetFallsBackWithoutPersisting(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, zaptest.NewLogger(t))

	p, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
	assert.Zero(t, store.saves)
}

func TestService_GetPropagatesStorageError(t *testing.T) {
	svc := NewService(&memStore{loadErr: errors.New("connection refused")}, nil)

	_, err := svc.Get(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestService_SetRejectsInsteadOfClamping(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, zaptest.NewLogger(t))

	bad := Defaults()
	bad.GeoFenceRadiusMeters = 0
	_, err := svc.Set(context.Background(), bad)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Zero(t, store.saves)
}

func TestService_SetReplacesWholesale(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, zaptest.NewLogger(t))

	want := Policy{QRExpiryEnabled: true, QRExpirySeconds: 45, GeoFenceRadiusMeters: 80}
	saved, err := svc.Set(context.Background(), want)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, got.GeoFencingEnabled)
	assert.False(t, got.DeviceBindingEnabled)
	assert.Equal(t, 45, got.QRExpirySeconds)
	assert.Equal(t, 80.0, got.GeoFenceRadiusMeters)
}

func TestRepository_LoadMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM security_policy WHERE id = 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"geo_fencing_enabled"}))

	_, ok, err := NewRepository(db).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LoadAndSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM security_policy WHERE id = 1`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"geo_fencing_enabled", "device_binding_enabled", "ip_binding_enabled",
			"qr_expiry_enabled", "qr_expiry_seconds", "geo_fence_radius_m", "updated_at",
		}).AddRow(true, false, false, true, 60, 75.5, now))

	p := Policy{GeoFencingEnabled: true, QRExpirySeconds: 20, GeoFenceRadiusMeters: 40, UpdatedAt: now}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO security_policy`)).
		WithArgs(true, false, false, false, 20, 40.0, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository(db)
	got, ok, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 60, got.QRExpirySeconds)
	assert.Equal(t, 75.5, got.GeoFenceRadiusMeters)
	assert.False(t, got.DeviceBindingEnabled)

	_, err = repo.Save(context.Background(), p)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatic(t *testing.T) {
	want := Defaults()
	want.IPBindingEnabled = false
	got, err := Static(want).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
