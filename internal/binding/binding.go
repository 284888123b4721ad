// Package binding ties a principal to the first device and network address
// it checks in from.
package binding

import "time"

// Binding is the per-principal first-use fingerprint record.
type Binding struct {
	PrincipalID    string    `json:"principalId"`
	DeviceID       *string   `json:"deviceId"`
	NetworkAddress *string   `json:"networkAddress"`
	ResetRequested bool      `json:"resetRequested"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Decision is the outcome of Check.
type Decision int

const (
	// Match means the presented value equals the bound one.
	Match Decision = iota
	// Bind means nothing is bound yet; the presented value should be stored.
	Bind
	// Mismatch means a different value is already bound.
	Mismatch
)

func (d Decision) String() string {
	switch d {
	case Match:
		return "match"
	case Bind:
		return "bind"
	case Mismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Check is the bind-or-verify rule. It never rebinds: once bound is non-nil,
// any other presented value is a Mismatch.
func Check(bound *string, presented string) Decision {
	if bound == nil || *bound == "" {
		return Bind
	}
	if *bound == presented {
		return Match
	}
	return Mismatch
}

// Kind selects which fingerprint a binding operation targets.
type Kind string

const (
	Device  Kind = "device"
	Network Kind = "network"
)

// Claim is the set of fingerprints one check-in wants bound. Nil fields are
// left alone. A claim is committed whole or not at all.
type Claim struct {
	DeviceID       *string
	NetworkAddress *string
}

// Set claims value for kind.
func (c *Claim) Set(kind Kind, value string) {
	v := value
	if kind == Network {
		c.NetworkAddress = &v
		return
	}
	c.DeviceID = &v
}

// Kinds lists the claimed kinds, device first.
func (c Claim) Kinds() []Kind {
	var out []Kind
	if c.DeviceID != nil {
		out = append(out, Device)
	}
	if c.NetworkAddress != nil {
		out = append(out, Network)
	}
	return out
}

// Empty reports whether nothing is claimed.
func (c Claim) Empty() bool {
	return c.DeviceID == nil && c.NetworkAddress == nil
}

func (c Claim) value(kind Kind) *string {
	if kind == Network {
		return c.NetworkAddress
	}
	return c.DeviceID
}

// Conflict returns the first claimed kind that b already binds to a
// different value.
func (c Claim) Conflict(b *Binding) (Kind, bool) {
	for _, kind := range c.Kinds() {
		if Check(b.Bound(kind), *c.value(kind)) == Mismatch {
			return kind, true
		}
	}
	return "", false
}

// Bound returns the stored value for kind.
func (b *Binding) Bound(kind Kind) *string {
	if b == nil {
		return nil
	}
	if kind == Network {
		return b.NetworkAddress
	}
	return b.DeviceID
}
