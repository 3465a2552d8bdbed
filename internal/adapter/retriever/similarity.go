package retriever

import "math"

// EarthRadiusKm is the mean Earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

// RatioSimilarity scores two non-negative magnitudes as
// max(0, 1 - |a-b| / max(a,b)). NaN on either side scores 0; two zeros are
// identical and score 1.
func RatioSimilarity(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0
	}
	hi := math.Max(a, b)
	if hi == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	return math.Max(0, 1-math.Abs(a-b)/hi)
}

// PriceSimilarity compares two parsed prices.
func PriceSimilarity(a, b float64) float64 {
	return RatioSimilarity(a, b)
}

// QuantitySimilarity compares two parsed quantities.
func QuantitySimilarity(a, b float64) float64 {
	return RatioSimilarity(a, b)
}

// HaversineKm is the great-circle distance between two points in degrees.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// LocationSimilarity decays linearly from 1 at distance 0 to 0 at maxKm.
// Any NaN coordinate scores 0.
func LocationSimilarity(lat1, lon1, lat2, lon2, maxKm float64) float64 {
	if math.IsNaN(lat1) || math.IsNaN(lon1) || math.IsNaN(lat2) || math.IsNaN(lon2) {
		return 0
	}
	if maxKm <= 0 {
		return 0
	}
	return math.Max(0, 1-HaversineKm(lat1, lon1, lat2, lon2)/maxKm)
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
