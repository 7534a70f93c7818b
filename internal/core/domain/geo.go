package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within coordinate ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Zero reports whether the point is the (0,0) null island placeholder used
// by devices that have no fix yet.
func (p GeoPoint) Zero() bool {
	return p.Lat == 0 && p.Lon == 0
}
