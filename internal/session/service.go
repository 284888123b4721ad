package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"qrattend/internal/metrics"
	"qrattend/internal/policy"
)

const (
	tokenBytes     = 32
	maxScheduleAge = 24 * time.Hour
	// scheduleSkew tolerates a client clock slightly behind ours.
	scheduleSkew = time.Minute
)

// Repo is the persistence contract the service needs.
type Repo interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListActive(ctx context.Context) ([]Session, error)
	RotateToken(ctx context.Context, id, token string, issuedAt, expiresAt time.Time) (bool, error)
	Close(ctx context.Context, id string, endTime time.Time) (bool, error)
	ClassroomExists(ctx context.Context, id string) (bool, error)
}

// Service implements the teacher-side session lifecycle.
type Service struct {
	repo    Repo
	policy  policy.Source
	log     *zap.Logger
	now     func() time.Time
	entropy io.Reader
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEntropy overrides crypto/rand as the token source.
func WithEntropy(r io.Reader) Option {
	return func(s *Service) { s.entropy = r }
}

// NewService creates a session service.
func NewService(repo Repo, pol policy.Source, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{repo: repo, policy: pol, log: log, now: time.Now, entropy: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is what a teacher submits to open a session.
type CreateInput struct {
	OwnerID        string
	ClassroomID    *string
	Subject        string
	AllowedGroups  []string
	AllowedCohorts []int
	ScheduledAt    *time.Time
}

// Create opens a new active session. A scheduled start must fall within the
// next 24 hours.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Session, error) {
	now := s.now().UTC()
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}

	start := now
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		if at.Before(now.Add(-scheduleSkew)) {
			return nil, fmt.Errorf("%w: scheduled time cannot be in the past", ErrInvalidInput)
		}
		if at.After(now.Add(maxScheduleAge)) {
			return nil, fmt.Errorf("%w: sessions can only be scheduled within the next 24 hours", ErrInvalidInput)
		}
		start = at
	}

	for _, c := range in.AllowedCohorts {
		if c <= 0 {
			return nil, fmt.Errorf("%w: cohort %d must be positive", ErrInvalidInput, c)
		}
	}
	groups := normalizeGroups(in.AllowedGroups)

	if in.ClassroomID != nil && *in.ClassroomID != "" {
		ok, err := s.repo.ClassroomExists(ctx, *in.ClassroomID)
		if err != nil {
			return nil, fmt.Errorf("lookup classroom: %w", err)
		}
		if !ok {
			return nil, ErrClassroomAbsent
		}
	} else {
		in.ClassroomID = nil
	}

	sess := Session{
		ID:             uuid.NewString(),
		OwnerID:        in.OwnerID,
		ClassroomID:    in.ClassroomID,
		Subject:        subject,
		AllowedGroups:  groups,
		AllowedCohorts: in.AllowedCohorts,
		StartTime:      start,
		Active:         true,
		CreatedAt:      now,
	}
	if sess.AllowedCohorts == nil {
		sess.AllowedCohorts = []int{}
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	s.log.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("owner_id", sess.OwnerID),
		zap.String("subject", sess.Subject),
		zap.Strings("allowed_groups", sess.AllowedGroups),
	)
	return &sess, nil
}

func normalizeGroups(in []string) []string {
	out := make([]string, 0, len(in))
	for _, g := range in {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return []string{AllGroups}
	}
	return out
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Owned returns a session only if requesterID owns it.
func (s *Service) Owned(ctx context.Context, id, requesterID string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	return sess, nil
}

// ListActive returns every open session.
func (s *Service) ListActive(ctx context.Context) ([]Session, error) {
	res, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return res, nil
}

// IssueToken mints a fresh token for an active session, invalidating the
// previous one immediately.
func (s *Service) IssueToken(ctx context.Context, sessionID, requesterID string) (Token, error) {
	sess, err := s.Owned(ctx, sessionID, requesterID)
	if err != nil {
		return Token{}, err
	}
	if !sess.Active {
		return Token{}, ErrInvalidState
	}

	pol, err := s.policy.Get(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("read policy: %w", err)
	}
	lifetime := FallbackTokenLifetime
	if pol.QRExpiryEnabled {
		lifetime = pol.QRLifetime()
	}

	value, err := s.newToken()
	if err != nil {
		return Token{}, err
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(lifetime)

	ok, err := s.repo.RotateToken(ctx, sessionID, value, issuedAt, expiresAt)
	if err != nil {
		return Token{}, fmt.Errorf("rotate token: %w", err)
	}
	if !ok {
		// closed between the read above and the update
		return Token{}, ErrInvalidState
	}
	metrics.TokensIssued.Inc()
	s.log.Debug("token rotated",
		zap.String("session_id", sessionID),
		zap.Time("expires_at", expiresAt),
	)
	return Token{
		SessionID: sessionID,
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Payload:   Payload{SessionRef: sessionID, Token: value}.Encode(),
	}, nil
}

func (s *Service) newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.entropy, buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Close ends an active session owned by requesterID.
func (s *Service) Close(ctx context.Context, sessionID, requesterID string) (*Session, error) {
	sess, err := s.Owned(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, ErrInvalidState
	}
	end := s.now().UTC()
	ok, err := s.repo.Close(ctx, sessionID, end)
	if err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}
	sess.Active = false
	sess.EndTime = &end
	sess.CurrentToken = nil
	s.log.Info("session closed", zap.String("session_id", sessionID))
	return sess, nil
}

// QRCode renders the current token of an owned, active session as a PNG.
func (s *Service) QRCode(ctx context.Context, sessionID, requesterID string, size int) ([]byte, error) {
	sess, err := s.Owned(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, ErrInvalidState
	}
	if sess.CurrentToken == nil {
		return nil, ErrNoToken
	}
	return RenderQR(Payload{SessionRef: sess.ID, Token: *sess.CurrentToken}.Encode(), size)
}

// RenderQR encodes a scan payload as a PNG image.
func RenderQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 300
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
