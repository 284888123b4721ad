package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Payload
		wantErr bool
	}{
		{"compact", "s-1.abc123", Payload{"s-1", "abc123"}, false},
		{"json", `{"sessionRef":"s-1","token":"abc123"}`, Payload{"s-1", "abc123"}, false},
		{"surrounding whitespace", "  s-1.abc123\n", Payload{"s-1", "abc123"}, false},
		{"empty", "", Payload{}, true},
		{"no separator", "s-1abc123", Payload{}, true},
		{"missing token", "s-1.", Payload{}, true},
		{"extra separator", "s-1.abc.def", Payload{}, true},
		{"broken json", `{"sessionRef":`, Payload{}, true},
		{"json missing token", `{"sessionRef":"s-1"}`, Payload{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayloadEncodeParses(t *testing.T) {
	p := Payload{SessionRef: "5f0c", Token: "deadbeef"}
	got, err := ParsePayload(p.Encode())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
