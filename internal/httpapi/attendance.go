package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/geo"
	"qrattend/internal/session"
)

// ---------- Student: check-in ----------

// verifyRequest carries either explicit sessionRef/token fields or the raw
// scanned payload. Explicit fields win.
type verifyRequest struct {
	SessionRef        string   `json:"sessionRef"`
	Token             string   `json:"token"`
	Payload           string   `json:"payload" binding:"max=2048"`
	Latitude          *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude         *float64 `json:"longitude" binding:"omitempty,longitude"`
	DeviceFingerprint string   `json:"deviceFingerprint" binding:"max=256"`
}

func (r verifyRequest) scan() (session.Payload, error) {
	if r.SessionRef != "" && r.Token != "" {
		return session.Payload{SessionRef: r.SessionRef, Token: r.Token}, nil
	}
	return session.ParsePayload(r.Payload)
}

type attendanceView struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	MarkedAt      time.Time `json:"markedAt"`
	PrincipalName string    `json:"principalName"`
	RollNo        *string   `json:"rollNo"`
	Group         *string   `json:"group"`
}

func viewOf(r *attendance.Record) attendanceView {
	return attendanceView{
		ID:            r.ID,
		Subject:       r.Subject,
		MarkedAt:      r.MarkedAt,
		PrincipalName: r.PrincipalName,
		RollNo:        r.RollNo,
		Group:         r.Group,
	}
}

// Verify marks attendance from a scanned QR code.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scan, err := req.scan()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": session.ErrMalformedPayload.Error()})
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude must be sent together"})
		return
	}
	var coords *geo.Point
	if req.Latitude != nil {
		coords = &geo.Point{Lat: *req.Latitude, Lon: *req.Longitude}
	}

	res, err := h.verifier.Verify(c.Request.Context(), attendance.Request{
		PrincipalID:    principalID(c),
		SessionID:      scan.SessionRef,
		Token:          scan.Token,
		Coords:         coords,
		DeviceID:       req.DeviceFingerprint,
		NetworkAddress: c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	})
	if err != nil {
		h.storageError(c, "verify check-in", err)
		return
	}

	switch res.Outcome {
	case attendance.Marked:
		c.JSON(http.StatusCreated, gin.H{"outcome": res.Outcome, "attendance": viewOf(res.Record)})
	case attendance.AlreadyMarked:
		c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome, "attendance": viewOf(res.Record)})
	default:
		c.JSON(res.Rejection.Reason.HTTPStatus(), res.Rejection)
	}
}

// History lists the caller's own attendance.
func (h *Handler) History(c *gin.Context) {
	limit := min(queryInt(c, "limit", 50), 200)
	offset := queryInt(c, "offset", 0)
	records, err := h.records.ListByPrincipal(c.Request.Context(), principalID(c), limit, offset)
	if err != nil {
		h.storageError(c, "list history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "limit": limit, "offset": offset})
}

// RequestBindingReset flags the caller's binding for administrator review.
func (h *Handler) RequestBindingReset(c *gin.Context) {
	if err := h.bindings.RequestReset(c.Request.Context(), principalID(c)); err != nil {
		h.storageError(c, "request binding reset", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "binding reset requested"})
}
