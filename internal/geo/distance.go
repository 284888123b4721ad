// Package geo computes great-circle distances for geofencing.
package geo

import "math"

// EarthRadiusMeters is the WGS-84 mean radius.
const EarthRadiusMeters = 6371000.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// DistanceMeters returns the haversine distance between two coordinates.
// Inputs are assumed to be valid degrees.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters over two points.
func Distance(a, b Point) float64 {
	return DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}
