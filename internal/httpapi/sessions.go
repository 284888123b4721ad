package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/session"
)

const (
	defaultQRSize = 300
	minQRSize     = 64
	maxQRSize     = 1024
)

// ---------- Teacher: sessions ----------

type createSessionRequest struct {
	ClassroomID    *string    `json:"classroomId"`
	Subject        string     `json:"subject" binding:"required,max=200"`
	AllowedGroups  []string   `json:"allowedGroups" binding:"omitempty,dive,max=64"`
	AllowedCohorts []int      `json:"allowedCohorts" binding:"omitempty,dive,gt=0"`
	ScheduledTime  *time.Time `json:"scheduledTime"`
}

// CreateSession opens a new attendance window owned by the caller.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), session.CreateInput{
		OwnerID:        principalID(c),
		ClassroomID:    req.ClassroomID,
		Subject:        req.Subject,
		AllowedGroups:  req.AllowedGroups,
		AllowedCohorts: req.AllowedCohorts,
		ScheduledAt:    req.ScheduledTime,
	})
	if err != nil {
		h.sessionError(c, "create session", err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// IssueToken rotates the session's QR token.
func (h *Handler) IssueToken(c *gin.Context) {
	tok, err := h.sessions.IssueToken(c.Request.Context(), c.Param("id"), principalID(c))
	if err != nil {
		h.sessionError(c, "issue token", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"token":     tok.Value,
		"issuedAt":  tok.IssuedAt,
		"expiresAt": tok.ExpiresAt,
		"payload":   tok.Payload,
	})
}

// QRCode renders the current token as a PNG.
func (h *Handler) QRCode(c *gin.Context) {
	size := queryInt(c, "size", defaultQRSize)
	size = min(max(size, minQRSize), maxQRSize)
	png, err := h.sessions.QRCode(c.Request.Context(), c.Param("id"), principalID(c), size)
	if err != nil {
		h.sessionError(c, "render qr", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// CloseSession ends the session.
func (h *Handler) CloseSession(c *gin.Context) {
	sess, err := h.sessions.Close(c.Request.Context(), c.Param("id"), principalID(c))
	if err != nil {
		h.sessionError(c, "close session", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SessionAttendance lists the records of an owned session.
func (h *Handler) SessionAttendance(c *gin.Context) {
	sess, err := h.sessions.Owned(c.Request.Context(), c.Param("id"), principalID(c))
	if err != nil {
		h.sessionError(c, "load session", err)
		return
	}
	records, err := h.records.ListBySession(c.Request.Context(), sess.ID)
	if err != nil {
		h.storageError(c, "list session attendance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "records": records, "total": len(records)})
}

// LiveCounts returns the live counters of an owned session.
func (h *Handler) LiveCounts(c *gin.Context) {
	if h.live == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live counters disabled"})
		return
	}
	sess, err := h.sessions.Owned(c.Request.Context(), c.Param("id"), principalID(c))
	if err != nil {
		h.sessionError(c, "load session", err)
		return
	}
	counts, err := h.live.Read(c.Request.Context(), sess.ID)
	if err != nil {
		h.storageError(c, "read live counters", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// ---------- Student: sessions ----------

// ActiveSessions lists every open session.
func (h *Handler) ActiveSessions(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context())
	if err != nil {
		h.storageError(c, "list active sessions", err)
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
