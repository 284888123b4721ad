// Package policy holds the administrator-controlled security policy that
// decides which check-in checks run.
package policy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default values used when no policy has been persisted yet.
const (
	DefaultQRExpirySeconds      = 30
	DefaultGeoFenceRadiusMeters = 50.0
)

// Policy is the singleton security configuration.
type Policy struct {
	GeoFencingEnabled    bool      `json:"geoFencingEnabled"`
	DeviceBindingEnabled bool      `json:"deviceBindingEnabled"`
	IPBindingEnabled     bool      `json:"ipBindingEnabled"`
	QRExpiryEnabled      bool      `json:"qrExpiryEnabled"`
	QRExpirySeconds      int       `json:"qrExpirySeconds" validate:"gt=0,lte=86400"`
	GeoFenceRadiusMeters float64   `json:"geoFenceRadius" validate:"gt=0"`
	UpdatedAt            time.Time `json:"updatedAt,omitzero"`
}

// Defaults returns the safe fallback policy: every check on, 30s tokens, 50m radius.
func Defaults() Policy {
	return Policy{
		GeoFencingEnabled:    true,
		DeviceBindingEnabled: true,
		IPBindingEnabled:     true,
		QRExpiryEnabled:      true,
		QRExpirySeconds:      DefaultQRExpirySeconds,
		GeoFenceRadiusMeters: DefaultGeoFenceRadiusMeters,
	}
}

// QRLifetime is the configured token lifetime.
func (p Policy) QRLifetime() time.Duration {
	return time.Duration(p.QRExpirySeconds) * time.Second
}

// FieldError describes one rejected policy field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Value any    `json:"value"`
}

// ValidationError is returned by Validate when a parameter is out of range.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s must satisfy %s (got %v)", f.Field, f.Rule, f.Value))
	}
	return "invalid policy: " + strings.Join(parts, "; ")
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate rejects out-of-range parameters. Values are never clamped.
func (p Policy) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: rule, Value: fe.Value()})
	}
	return out
}
