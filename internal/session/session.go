// Package session manages attendance windows ("lectures") and the rotating
// QR tokens bound to them.
package session

import (
	"errors"
	"slices"
	"time"

	"qrattend/internal/geo"
	"qrattend/internal/policy"
)

// AllGroups is the allow-list sentinel that admits every group.
const AllGroups = "All"

// FallbackTokenLifetime caps token lifetime when QR expiry is disabled by policy.
const FallbackTokenLifetime = 30 * time.Second

var (
	ErrNotFound        = errors.New("session not found")
	ErrForbidden       = errors.New("not the session owner")
	ErrInvalidState    = errors.New("session is not active")
	ErrInvalidInput    = errors.New("invalid session input")
	ErrNoToken         = errors.New("no token issued for session")
	ErrClassroomAbsent = errors.New("classroom not found")
)

// Classroom is the physical or virtual room a session takes place in.
type Classroom struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Virtual      bool     `json:"virtual"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusMeters *float64 `json:"radius,omitempty"`
}

// Location returns the registered coordinates of a physical classroom.
func (c *Classroom) Location() (geo.Point, bool) {
	if c == nil || c.Virtual || c.Latitude == nil || c.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *c.Latitude, Lon: *c.Longitude}, true
}

// Session is one open (or closed) attendance window.
type Session struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	ClassroomID    *string    `json:"classroomId,omitempty"`
	Classroom      *Classroom `json:"classroom,omitempty"`
	Subject        string     `json:"subject"`
	AllowedGroups  []string   `json:"allowedGroups"`
	AllowedCohorts []int      `json:"allowedCohorts"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Active         bool       `json:"active"`
	CurrentToken   *string    `json:"-"`
	TokenIssuedAt  *time.Time `json:"tokenIssuedAt,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// TokenDeadline is the instant after which the current token stops being
// accepted. With QR expiry disabled the deadline is still capped at
// FallbackTokenLifetime after issue.
func (s *Session) TokenDeadline(p policy.Policy) (time.Time, bool) {
	if s.CurrentToken == nil {
		return time.Time{}, false
	}
	if p.QRExpiryEnabled && s.TokenExpiresAt != nil {
		return *s.TokenExpiresAt, true
	}
	if s.TokenIssuedAt != nil {
		return s.TokenIssuedAt.Add(FallbackTokenLifetime), true
	}
	if s.TokenExpiresAt != nil {
		return *s.TokenExpiresAt, true
	}
	return time.Time{}, false
}

// RestrictsGroups reports whether the group allow-list is in force.
func (s *Session) RestrictsGroups() bool {
	return len(s.AllowedGroups) > 0 && !slices.Contains(s.AllowedGroups, AllGroups)
}

// Token is a freshly minted QR secret.
type Token struct {
	SessionID string    `json:"sessionId"`
	Value     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Payload   string    `json:"payload"`
}
