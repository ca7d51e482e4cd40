package services

import "math"

const earthRadiusM = 6371000.0

// Geofence is a circular service area around a reference point.
type Geofence struct {
	CenterLat float64
	CenterLon float64
	RadiusM   float64
}

// HaversineMeters returns the great-circle distance between two points in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Check returns the rounded distance to the center and whether the point is inside.
// Inside is derived from the rounded distance so the stored pair is always consistent.
func (g Geofence) Check(lat, lon float64) (distanceM int, inside bool) {
	distanceM = int(math.Round(HaversineMeters(g.CenterLat, g.CenterLon, lat, lon)))
	return distanceM, float64(distanceM) <= g.RadiusM
}
