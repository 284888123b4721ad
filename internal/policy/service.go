package policy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence contract for the policy singleton.
type Store interface {
	Load(ctx context.Context) (Policy, bool, error)
	Save(ctx context.Context, p Policy) (Policy, error)
}

// Source is what the issuer and the verifier read the current policy from.
type Source interface {
	Get(ctx context.Context) (Policy, error)
}

// Service exposes get/set over a Store.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates a policy service.
func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// Get returns the persisted policy, or Defaults when none exists. Defaults
// are not written back.
func (s *Service) Get(ctx context.Context) (Policy, error) {
	p, ok, err := s.store.Load(ctx)
	if err != nil {
		return Policy{}, fmt.Errorf("load policy: %w", err)
	}
	if !ok {
		return Defaults(), nil
	}
	return p, nil
}

// Set validates and replaces the whole policy. Concurrent edits are last
// writer wins.
func (s *Service) Set(ctx context.Context, p Policy) (Policy, error) {
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	saved, err := s.store.Save(ctx, p)
	if err != nil {
		return Policy{}, fmt.Errorf("save policy: %w", err)
	}
	s.log.Info("security policy updated",
		zap.Bool("geo_fencing", saved.GeoFencingEnabled),
		zap.Bool("device_binding", saved.DeviceBindingEnabled),
		zap.Bool("ip_binding", saved.IPBindingEnabled),
		zap.Bool("qr_expiry", saved.QRExpiryEnabled),
		zap.Int("qr_expiry_seconds", saved.QRExpirySeconds),
		zap.Float64("geo_fence_radius", saved.GeoFenceRadiusMeters),
	)
	return saved, nil
}

// Static is a fixed Source, handy for tests and tooling.
type Static Policy

// Get returns the wrapped policy.
func (s Static) Get(context.Context) (Policy, error) { return Policy(s), nil }
