package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"Same Point", 31.24, 121.49, 31.24, 121.49, 0},
		{"Bund to Jing'an Temple", 31.2400, 121.4903, 31.2235, 121.4458, 4600}, // Approx 4.6km
		{"Equator 1 degree", 0, 0, 0, 1, 111195},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			// Allow 2% margin of error
			margin := tt.want * 0.02
			if math.Abs(got-tt.want) > margin {
				t.Errorf("Haversine() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
		})
	}
}

func TestDistance_MatchesOrb(t *testing.T) {
	a := orb.Point{121.4903, 31.2400}
	b := orb.Point{121.4737, 31.2304}

	got := Distance(a, b)
	want := orbgeo.DistanceHaversine(a, b)

	// orb uses the WGS84 equatorial radius, we use the mean radius.
	if math.Abs(got-want)/want > 0.002 {
		t.Errorf("Distance() = %v, orb = %v", got, want)
	}
}

func TestScreenPoint_DistanceTo(t *testing.T) {
	got := ScreenPoint{X: 0, Y: 0}.DistanceTo(ScreenPoint{X: 3, Y: 4})
	if got != 5 {
		t.Errorf("DistanceTo() = %v, want 5", got)
	}
}
