package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm_SamePointIsZero(t *testing.T) {
	t.Parallel()

	points := [][2]float64{
		{0, 0},
		{-1.2921, 36.8219},
		{89.9, -179.9},
		{-45, 170},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, DistanceKm(p[0], p[1], p[0], p[1]))
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
	}{
		{"equator", 0, 0, 0, 1},
		{"nairobi", -1.2841, 36.8155, -1.2630, 36.8063},
		{"dateline", 10, 179.5, 10, -179.5},
		{"antipodal", 0, 0, 0, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d1 := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			d2 := DistanceKm(tt.lat2, tt.lon2, tt.lat1, tt.lon1)
			assert.InDelta(t, d1, d2, 1e-9)
			assert.GreaterOrEqual(t, d1, 0.0)
		})
	}
}

func TestDistanceKm_KnownValues(t *testing.T) {
	t.Parallel()

	// One degree of longitude on the equator.
	assert.InDelta(t, 111.19, DistanceKm(0, 0, 0, 1), 0.01)

	// Half the circumference.
	assert.InDelta(t, 20015.09, DistanceKm(0, 0, 0, 180), 0.1)

	// Two Nairobi fixture sites a little over 1 km apart.
	d := DistanceKm(-1.2841, 36.8155, -1.2921, 36.8219)
	assert.InDelta(t, 1.14, d, 0.05)
}
