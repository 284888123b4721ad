package session

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedPayload means a scanned QR payload could not be decoded.
var ErrMalformedPayload = errors.New("malformed scan payload")

const payloadSep = "."

// Payload is what a QR code carries.
type Payload struct {
	SessionRef string `json:"sessionRef"`
	Token      string `json:"token"`
}

// Encode renders the compact form "<sessionRef>.<token>".
func (p Payload) Encode() string {
	return p.SessionRef + payloadSep + p.Token
}

// ParsePayload accepts either the JSON form or the compact form.
func ParsePayload(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrMalformedPayload
	}
	var p Payload
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return Payload{}, ErrMalformedPayload
		}
	} else {
		ref, tok, ok := strings.Cut(raw, payloadSep)
		if !ok {
			return Payload{}, ErrMalformedPayload
		}
		p = Payload{SessionRef: ref, Token: tok}
	}
	p.SessionRef = strings.TrimSpace(p.SessionRef)
	p.Token = strings.TrimSpace(p.Token)
	if p.SessionRef == "" || p.Token == "" || strings.Contains(p.Token, payloadSep) {
		return Payload{}, ErrMalformedPayload
	}
	return p, nil
}
