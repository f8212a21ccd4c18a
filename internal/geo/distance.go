package geo

import "math"

// EarthRadiusNM is the mean Earth radius in nautical miles.
const EarthRadiusNM = 3440.065

// DistanceNM returns the great-circle distance in nautical miles
// between two points given in decimal degrees. The cosine argument is
// clamped to [-1, 1] so coincident and antipodal points cannot round
// outside acos's domain and produce NaN.
func DistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dLambda := (lon2 - lon1) * degToRad

	c := math.Sin(phi1)*math.Sin(phi2) + math.Cos(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	c = math.Min(1, math.Max(-1, c))
	return EarthRadiusNM * math.Acos(c)
}
