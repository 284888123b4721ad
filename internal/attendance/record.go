// Package attendance verifies QR check-ins and keeps the attendance ledger.
package attendance

import (
	"errors"
	"net/http"
	"time"
)

// StatusPresent is the only status the verifier writes.
const StatusPresent = "present"

// ErrDuplicate is returned by the ledger when (principal, session) already has a record.
var ErrDuplicate = errors.New("attendance already recorded")

// Record is one persisted check-in. Principal fields are a snapshot taken at
// check-in time.
type Record struct {
	ID             string    `json:"id"`
	PrincipalID    string    `json:"principalId"`
	SessionID      string    `json:"sessionId"`
	Subject        string    `json:"subject"`
	PrincipalName  string    `json:"principalName"`
	RollNo         *string   `json:"rollNo,omitempty"`
	Group          *string   `json:"group,omitempty"`
	Cohort         *int      `json:"cohort,omitempty"`
	Section        *string   `json:"section,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	DeviceID       string    `json:"-"`
	NetworkAddress string    `json:"-"`
	UserAgent      string    `json:"userAgent,omitempty"`
	Status         string    `json:"status"`
	MarkedAt       time.Time `json:"markedAt"`
}

// Reason is the machine-readable code of a rejection.
type Reason string

const (
	ReasonNotApproved      Reason = "NOT_APPROVED"
	ReasonDeviceMismatch   Reason = "DEVICE_MISMATCH"
	ReasonNetworkMismatch  Reason = "NETWORK_MISMATCH"
	ReasonSessionNotFound  Reason = "SESSION_NOT_FOUND"
	ReasonSessionClosed    Reason = "SESSION_CLOSED"
	ReasonInvalidToken     Reason = "INVALID_TOKEN"
	ReasonTokenExpired     Reason = "TOKEN_EXPIRED"
	ReasonMissingProfile   Reason = "MISSING_PROFILE"
	ReasonNotEligible      Reason = "NOT_ELIGIBLE"
	ReasonLocationRequired Reason = "LOCATION_REQUIRED"
	ReasonTooFar           Reason = "TOO_FAR"
)

// HTTPStatus maps a reason onto the status code clients see.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonNotApproved, ReasonDeviceMismatch, ReasonNetworkMismatch, ReasonNotEligible:
		return http.StatusForbidden
	case ReasonSessionNotFound:
		return http.StatusNotFound
	case ReasonTokenExpired:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}

// Rejection is a user-facing refusal. It is a value, not an error.
type Rejection struct {
	Reason  Reason         `json:"reason"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Outcome tags a Result.
type Outcome string

const (
	Marked        Outcome = "marked"
	AlreadyMarked Outcome = "already_marked"
	Rejected      Outcome = "rejected"
)

// Result is what Verify produces for every non-faulting request. Record is
// set for Marked and AlreadyMarked, Rejection for Rejected.
type Result struct {
	Outcome   Outcome
	Record    *Record
	Rejection *Rejection
}

func rejected(r *Rejection) Result {
	return Result{Outcome: Rejected, Rejection: r}
}

func reasonLabel(res Result) string {
	if res.Rejection != nil {
		return string(res.Rejection.Reason)
	}
	return ""
}
