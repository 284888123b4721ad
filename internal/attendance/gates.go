package attendance

import (
	"crypto/subtle"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"qrattend/internal/binding"
	"qrattend/internal/geo"
	"qrattend/internal/identity"
	"qrattend/internal/policy"
	"qrattend/internal/session"
)

// Each gate is pure: it inspects values already loaded and returns nil to
// pass or the rejection that ends the pipeline.

func checkApproval(p *identity.Principal) *Rejection {
	if p == nil || !p.Approved {
		return &Rejection{Reason: ReasonNotApproved, Message: "Account not approved. Please contact an administrator."}
	}
	return nil
}

// checkBinding applies the bind-or-verify rule for one fingerprint kind.
// A Bind decision passes here; the caller commits it after every other gate.
func checkBinding(kind binding.Kind, bound *string, presented string) (binding.Decision, *Rejection) {
	if presented == "" {
		return binding.Mismatch, &Rejection{
			Reason:  mismatchReason(kind),
			Message: fmt.Sprintf("No %s was presented with the scan.", kindNoun(kind)),
		}
	}
	d := binding.Check(bound, presented)
	if d == binding.Mismatch {
		return d, mismatch(kind)
	}
	return d, nil
}

func mismatch(kind binding.Kind) *Rejection {
	return &Rejection{
		Reason:  mismatchReason(kind),
		Message: fmt.Sprintf("This account is bound to a different %s. Only an administrator can reset the binding.", kindNoun(kind)),
	}
}

func mismatchReason(kind binding.Kind) Reason {
	if kind == binding.Network {
		return ReasonNetworkMismatch
	}
	return ReasonDeviceMismatch
}

func kindNoun(kind binding.Kind) string {
	if kind == binding.Network {
		return "network address"
	}
	return "device"
}

func checkSessionOpen(s *session.Session) *Rejection {
	if s == nil {
		return &Rejection{Reason: ReasonSessionNotFound, Message: "Session not found."}
	}
	if !s.Active {
		return &Rejection{Reason: ReasonSessionClosed, Message: "This session is closed."}
	}
	return nil
}

func checkToken(s *session.Session, presented string) *Rejection {
	if s.CurrentToken == nil || presented == "" ||
		subtle.ConstantTimeCompare([]byte(*s.CurrentToken), []byte(presented)) != 1 {
		return &Rejection{Reason: ReasonInvalidToken, Message: "Invalid QR code. Please scan the latest one."}
	}
	return nil
}

// checkFreshness uses the same session snapshot the token was matched against.
func checkFreshness(s *session.Session, pol policy.Policy, now time.Time) *Rejection {
	deadline, ok := s.TokenDeadline(pol)
	if !ok || now.After(deadline) {
		return &Rejection{Reason: ReasonTokenExpired, Message: "QR code expired. Ask the teacher to show a new one."}
	}
	return nil
}

func checkEligibility(s *session.Session, p *identity.Principal) *Rejection {
	if p.Group == nil || *p.Group == "" {
		return &Rejection{Reason: ReasonMissingProfile, Message: "Your group is missing from your profile. Please contact an administrator."}
	}
	if s.RestrictsGroups() && !slices.Contains(s.AllowedGroups, *p.Group) {
		return &Rejection{
			Reason:  ReasonNotEligible,
			Message: fmt.Sprintf("This session is only for %s. Your group (%s) is not allowed.", strings.Join(s.AllowedGroups, ", "), *p.Group),
			Details: map[string]any{"allowedGroups": s.AllowedGroups, "yourGroup": *p.Group},
		}
	}
	if len(s.AllowedCohorts) > 0 && (p.Cohort == nil || !slices.Contains(s.AllowedCohorts, *p.Cohort)) {
		var yours any
		if p.Cohort != nil {
			yours = *p.Cohort
		}
		return &Rejection{
			Reason:  ReasonNotEligible,
			Message: "This session is not open to your cohort.",
			Details: map[string]any{"allowedCohorts": s.AllowedCohorts, "yourCohort": yours},
		}
	}
	return nil
}

// checkGeofence is skipped for virtual rooms and sessions without a room.
// Distance is compared in whole meters, the precision it is reported in, and
// the radius boundary is inclusive.
func checkGeofence(s *session.Session, pol policy.Policy, coords *geo.Point) *Rejection {
	if !pol.GeoFencingEnabled {
		return nil
	}
	room, ok := s.Classroom.Location()
	if !ok {
		return nil
	}
	if coords == nil {
		return &Rejection{Reason: ReasonLocationRequired, Message: "Location is required. Please enable location services."}
	}
	radius := pol.GeoFenceRadiusMeters
	if r := s.Classroom.RadiusMeters; r != nil && *r > 0 {
		radius = *r
	}
	rounded := math.Round(geo.Distance(*coords, room))
	if rounded > radius {
		return &Rejection{
			Reason:  ReasonTooFar,
			Message: fmt.Sprintf("Too far from the classroom. You are %.0fm away (limit: %gm).", rounded, radius),
			Details: map[string]any{"distanceMeters": rounded, "allowedRadius": radius},
		}
	}
	return nil
}
