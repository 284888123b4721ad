package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		want      float64
		tolerance float64
	}{
		{"identical points", Point{19, 72}, Point{19, 72}, 0, 0},
		{"about fifty meters north", Point{19, 72}, Point{19.00045, 72}, 50.04, 0.1},
		{"about 111 meters north", Point{19, 72}, Point{19.001, 72}, 111.19, 0.1},
		{"one degree of longitude on the equator", Point{0, 0}, Point{0, 1}, 111194.9, 1},
		{"antipodal", Point{0, 0}, Point{0, 180}, math.Pi * EarthRadiusMeters, 1},
		{"pole to pole", Point{90, 0}, Point{-90, 0}, math.Pi * EarthRadiusMeters, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	d1 := DistanceMeters(19.0760, 72.8777, 28.7041, 77.1025)
	d2 := DistanceMeters(28.7041, 77.1025, 19.0760, 72.8777)
	assert.InDelta(t, d1, d2, 1e-6)
	assert.InDelta(t, 1_153_241, d1, 1_000)
}
