package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrattend/internal/binding"
	"qrattend/internal/geo"
	"qrattend/internal/identity"
	"qrattend/internal/metrics"
	"qrattend/internal/policy"
	"qrattend/internal/queue"
	"qrattend/internal/session"
)

// Request is one scan submitted by a principal. It is not modified by Verify.
type Request struct {
	PrincipalID    string
	SessionID      string
	Token          string
	Coords         *geo.Point
	DeviceID       string
	NetworkAddress string
	UserAgent      string
}

// Sessions fetches a session with its current token in a single read.
// A missing session is nil, nil or session.ErrNotFound.
type Sessions interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Principals resolves the authenticated principal.
type Principals interface {
	Principal(ctx context.Context, id string) (*identity.Principal, error)
}

// Bindings reads and commits first-use identity bindings.
type Bindings interface {
	Get(ctx context.Context, principalID string) (*binding.Binding, error)
	BindFirstUse(ctx context.Context, principalID string, claim binding.Claim) (*binding.Binding, error)
}

// Store is the subset of the ledger the verifier writes through.
type Store interface {
	Insert(ctx context.Context, r Record) (Record, error)
	Find(ctx context.Context, principalID, sessionID string) (*Record, error)
}

// Verifier runs the check-in pipeline.
type Verifier struct {
	policy     policy.Source
	sessions   Sessions
	principals Principals
	bindings   Bindings
	ledger     Store
	events     queue.Publisher
	log        *zap.Logger
	now        func() time.Time
}

// Deps groups the collaborators of a Verifier. Events may be nil.
type Deps struct {
	Policy     policy.Source
	Sessions   Sessions
	Principals Principals
	Bindings   Bindings
	Ledger     Store
	Events     queue.Publisher
	Log        *zap.Logger
	Now        func() time.Time
}

// NewVerifier creates a verifier.
func NewVerifier(d Deps) *Verifier {
	v := &Verifier{
		policy:     d.Policy,
		sessions:   d.Sessions,
		principals: d.Principals,
		bindings:   d.Bindings,
		ledger:     d.Ledger,
		events:     d.Events,
		log:        d.Log,
		now:        d.Now,
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// Verify decides whether req marks attendance. Rejections come back as a
// Result; the error is reserved for storage faults.
func (v *Verifier) Verify(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() { v.observe(req, res, err, time.Since(start)) }()

	now := v.now().UTC()

	pol, err := v.policy.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read policy: %w", err)
	}

	principal, err := v.principals.Principal(ctx, req.PrincipalID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup principal: %w", err)
	}
	if rej := checkApproval(principal); rej != nil {
		return rejected(rej), nil
	}

	var claim binding.Claim
	if pol.DeviceBindingEnabled || pol.IPBindingEnabled {
		b, err := v.bindings.Get(ctx, principal.ID)
		if err != nil {
			return Result{}, fmt.Errorf("read binding: %w", err)
		}
		checks := []struct {
			enabled bool
			kind    binding.Kind
			value   string
		}{
			{pol.DeviceBindingEnabled, binding.Device, req.DeviceID},
			{pol.IPBindingEnabled, binding.Network, req.NetworkAddress},
		}
		for _, c := range checks {
			if !c.enabled {
				continue
			}
			d, rej := checkBinding(c.kind, b.Bound(c.kind), c.value)
			if rej != nil {
				return rejected(rej), nil
			}
			if d == binding.Bind {
				claim.Set(c.kind, c.value)
			}
		}
	}

	sess, err := v.sessions.Get(ctx, req.SessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	if errors.Is(err, session.ErrNotFound) {
		sess = nil
	}
	if rej := checkSessionOpen(sess); rej != nil {
		return rejected(rej), nil
	}
	if rej := checkToken(sess, req.Token); rej != nil {
		return rejected(rej), nil
	}
	if rej := checkFreshness(sess, pol, now); rej != nil {
		return rejected(rej), nil
	}
	if rej := checkEligibility(sess, principal); rej != nil {
		return rejected(rej), nil
	}
	if rej := checkGeofence(sess, pol, req.Coords); rej != nil {
		return rejected(rej), nil
	}

	existing, err := v.ledger.Find(ctx, principal.ID, sess.ID)
	if err != nil {
		return Result{}, fmt.Errorf("find record: %w", err)
	}
	if existing != nil {
		return Result{Outcome: AlreadyMarked, Record: withSubject(existing, sess)}, nil
	}

	if !claim.Empty() {
		stored, err := v.bindings.BindFirstUse(ctx, principal.ID, claim)
		if err != nil {
			return Result{}, fmt.Errorf("commit binding: %w", err)
		}
		if kind, conflict := claim.Conflict(stored); conflict {
			// a concurrent request bound a different value first; nothing was written
			return rejected(mismatch(kind)), nil
		}
		for _, kind := range claim.Kinds() {
			metrics.BindingsCommitted.WithLabelValues(string(kind)).Inc()
		}
	}

	rec := newRecord(req, principal, sess, now)
	saved, err := v.ledger.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicate) {
		winner, ferr := v.ledger.Find(ctx, principal.ID, sess.ID)
		if ferr != nil {
			return Result{}, fmt.Errorf("find winning record: %w", ferr)
		}
		if winner == nil {
			return Result{}, fmt.Errorf("duplicate reported but no record found: %w", err)
		}
		return Result{Outcome: AlreadyMarked, Record: withSubject(winner, sess)}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("insert record: %w", err)
	}

	v.publishMarked(ctx, saved)
	return Result{Outcome: Marked, Record: &saved}, nil
}

func newRecord(req Request, p *identity.Principal, s *session.Session, now time.Time) Record {
	rec := Record{
		ID:             uuid.NewString(),
		PrincipalID:    p.ID,
		SessionID:      s.ID,
		Subject:        s.Subject,
		PrincipalName:  p.Name,
		RollNo:         p.RollNo,
		Group:          p.Group,
		Cohort:         p.Cohort,
		Section:        p.Section,
		DeviceID:       req.DeviceID,
		NetworkAddress: req.NetworkAddress,
		UserAgent:      req.UserAgent,
		Status:         StatusPresent,
		MarkedAt:       now,
	}
	if req.Coords != nil {
		lat, lon := req.Coords.Lat, req.Coords.Lon
		rec.Latitude, rec.Longitude = &lat, &lon
	}
	return rec
}

func withSubject(r *Record, s *session.Session) *Record {
	if r.Subject == "" {
		r.Subject = s.Subject
	}
	return r
}

// publishMarked never fails the check-in; the record is already committed.
func (v *Verifier) publishMarked(ctx context.Context, r Record) {
	if v.events == nil {
		return
	}
	evt := queue.AttendanceMarked{
		RecordID:    r.ID,
		SessionID:   r.SessionID,
		PrincipalID: r.PrincipalID,
		MarkedAt:    r.MarkedAt,
	}
	if r.Group != nil {
		evt.Group = *r.Group
	}
	msg, err := queue.NewMessage(queue.TypeAttendanceMarked, evt)
	if err == nil {
		err = v.events.Publish(ctx, msg)
	}
	if err != nil {
		v.log.Warn("publish attendance event failed",
			zap.String("record_id", r.ID),
			zap.String("session_id", r.SessionID),
			zap.Error(err),
		)
	}
}

func (v *Verifier) observe(req Request, res Result, err error, took time.Duration) {
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	reason := reasonLabel(res)
	metrics.Verifications.WithLabelValues(outcome, reason).Inc()
	metrics.VerifyDuration.WithLabelValues(outcome).Observe(took.Seconds())

	fields := []zap.Field{
		zap.String("principal_id", req.PrincipalID),
		zap.String("session_id", req.SessionID),
		zap.String("outcome", outcome),
		zap.Duration("took", took),
	}
	switch {
	case err != nil:
		v.log.Error("check-in verification failed", append(fields, zap.Error(err))...)
	case res.Outcome == Rejected:
		v.log.Info("check-in rejected", append(fields, zap.String("reason", reason))...)
	default:
		v.log.Debug("check-in verified", fields...)
	}
}
