package geospatial

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantMeters             float64
		tolerance              float64
	}{
		{"same point", 43.2630, -2.9350, 43.2630, -2.9350, 0, 0.01},
		{"bilbao to san sebastian", 43.2630, -2.9350, 43.3183, -1.9812, 77500, 1500},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 200},
		{"across the equator", -0.01, 0, 0.01, 0, 2224, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantMeters) > tt.tolerance {
				t.Errorf("got %.1f m, expected %.1f ± %.1f", got, tt.wantMeters, tt.tolerance)
			}
		})
	}
}

func TestHaversineSymmetry(t *testing.T) {
	ab := Haversine(43.26, -2.93, 43.30, -2.95)
	ba := Haversine(43.30, -2.95, 43.26, -2.93)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("asymmetric: %.9f vs %.9f", ab, ba)
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	lat, lon := 43.2630, -2.9350
	minLat, minLon, maxLat, maxLon := BoundingBox(lat, lon, 100)

	if minLat >= lat || maxLat <= lat || minLon >= lon || maxLon <= lon {
		t.Fatal("box does not surround the center")
	}

	// Points exactly at the radius along each axis stay inside the box.
	north := lat + 100/111320.0
	if north > maxLat {
		t.Errorf("north edge %.6f outside box max %.6f", north, maxLat)
	}
	east := lon + 100/(111320.0*math.Cos(lat*math.Pi/180))
	if east > maxLon {
		t.Errorf("east edge %.6f outside box max %.6f", east, maxLon)
	}
}
