// Package httpapi exposes the check-in service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/live"
	"qrattend/internal/policy"
	"qrattend/internal/session"
)

// Sessions is the teacher-side session lifecycle.
type Sessions interface {
	Create(ctx context.Context, in session.CreateInput) (*session.Session, error)
	Owned(ctx context.Context, id, requesterID string) (*session.Session, error)
	ListActive(ctx context.Context) ([]session.Session, error)
	IssueToken(ctx context.Context, sessionID, requesterID string) (session.Token, error)
	QRCode(ctx context.Context, sessionID, requesterID string, size int) ([]byte, error)
	Close(ctx context.Context, sessionID, requesterID string) (*session.Session, error)
}

// Verifier runs the check-in pipeline.
type Verifier interface {
	Verify(ctx context.Context, req attendance.Request) (attendance.Result, error)
}

// Records reads the attendance ledger.
type Records interface {
	ListByPrincipal(ctx context.Context, principalID string, limit, offset int) ([]attendance.Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]attendance.Record, error)
}

// Policies reads and replaces the security policy.
type Policies interface {
	Get(ctx context.Context) (policy.Policy, error)
	Set(ctx context.Context, p policy.Policy) (policy.Policy, error)
}

// Bindings manages binding resets.
type Bindings interface {
	RequestReset(ctx context.Context, principalID string) error
	Reset(ctx context.Context, principalID string) error
}

// LiveCounts reads the live per-session counters.
type LiveCounts interface {
	Read(ctx context.Context, sessionID string) (live.Counts, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler holds the collaborators of every route.
type Handler struct {
	sessions Sessions
	verifier Verifier
	records  Records
	policies Policies
	bindings Bindings
	live     LiveCounts
	health   map[string]HealthCheck
	log      *zap.Logger
}

// Deps groups what New needs. Live and Health may be nil.
type Deps struct {
	Sessions Sessions
	Verifier Verifier
	Records  Records
	Policies Policies
	Bindings Bindings
	Live     LiveCounts
	Health   map[string]HealthCheck
	Log      *zap.Logger
}

// New creates a handler.
func New(d Deps) *Handler {
	h := &Handler{
		sessions: d.Sessions,
		verifier: d.Verifier,
		records:  d.Records,
		policies: d.Policies,
		bindings: d.Bindings,
		live:     d.Live,
		health:   d.Health,
		log:      d.Log,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	return h
}

// ---------- Health ----------

// Healthz reports the status of every registered dependency.
func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- helpers ----------

func principalID(c *gin.Context) string {
	claims, _ := auth.FromContext(c)
	return claims.Subject
}

func (h *Handler) storageError(c *gin.Context, op string, err error) {
	h.log.Error(op+" failed", zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
}

// sessionError maps session sentinel errors onto HTTP responses.
func (h *Handler) sessionError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrNoToken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidInput), errors.Is(err, session.ErrClassroomAbsent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.storageError(c, op, err)
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
