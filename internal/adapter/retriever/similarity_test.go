package retriever

import (
	"math"
	"testing"
)

func TestRatioSimilarity(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		name string
		a, b float64
		want float64
	}{
		{"equal", 100, 100, 1},
		{"half", 50, 100, 0.5},
		{"far", 1, 1000, 0.001},
		{"zero and positive", 0, 10, 0},
		{"both zero", 0, 0, 1},
		{"nan left", nan, 10, 0},
		{"nan right", 10, nan, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RatioSimilarity(tc.a, tc.b)
			if !floatEquals(got, tc.want, 1e-9) {
				t.Errorf("RatioSimilarity(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestPriceSimilaritySymmetric(t *testing.T) {
	values := []float64{0, 0.5, 1, 7, 14952, 85000, 1e9}
	for _, a := range values {
		for _, b := range values {
			ab, ba := PriceSimilarity(a, b), PriceSimilarity(b, a)
			if ab != ba {
				t.Errorf("PriceSimilarity(%v,%v)=%v but reverse=%v", a, b, ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("PriceSimilarity(%v,%v)=%v out of [0,1]", a, b, ab)
			}
		}
	}
}

func TestHaversineKm(t *testing.T) {
	// Ho Chi Minh City to Ha Noi is roughly 1140 km.
	d := HaversineKm(10.7769, 106.7009, 21.0285, 105.8542)
	if d < 1100 || d > 1180 {
		t.Errorf("unexpected distance %v km", d)
	}
	if d := HaversineKm(10, 106, 10, 106); d != 0 {
		t.Errorf("distance to self = %v", d)
	}
	// One degree of latitude is about 111.2 km.
	if d := HaversineKm(0, 0, 1, 0); !floatEquals(d, 111.19, 0.01) {
		t.Errorf("one degree = %v km", d)
	}
}

func TestLocationSimilarityDecay(t *testing.T) {
	const lat, lon = 10.0, 106.0

	if s := LocationSimilarity(lat, lon, lat, lon, 50); s != 1 {
		t.Errorf("same point should score 1, got %v", s)
	}

	prev := 1.0
	for step := 1; step <= 10; step++ {
		// 0.05 degrees of latitude per step, about 5.6 km.
		s := LocationSimilarity(lat, lon, lat+0.05*float64(step), lon, 50)
		if s > prev {
			t.Errorf("similarity increased with distance at step %d: %v > %v", step, s, prev)
		}
		prev = s
	}

	// About 55.6 km apart.
	if s := LocationSimilarity(lat, lon, lat+0.5, lon, 50); s != 0 {
		t.Errorf("beyond 50 km should score 0, got %v", s)
	}
	if s := LocationSimilarity(math.NaN(), lon, lat, lon, 50); s != 0 {
		t.Errorf("NaN coordinate should score 0, got %v", s)
	}
}

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
