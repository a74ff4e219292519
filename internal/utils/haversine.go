package utils

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two WGS84 points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	h := math.Pow(math.Sin(dPhi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// WithinRadiusKm reports the distance and whether it is inside radiusKm.
func WithinRadiusKm(lat1, lon1, lat2, lon2, radiusKm float64) (float64, bool) {
	d := HaversineKm(lat1, lon1, lat2, lon2)
	return d, d <= radiusKm
}

func radians(d float64) float64 {
	return d * math.Pi / 180
}
