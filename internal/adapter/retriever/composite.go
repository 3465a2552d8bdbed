package retriever

import (
	"math"
	"sort"

	"agrirec/internal/domain"
)

// Ranked is a scored catalog row with the terms that produced its score.
type Ranked struct {
	Row        int               `json:"row"`
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Components domain.Components `json:"components"`
}

// CompositeRanker re-scores semantic candidates with price, location and
// quantity proximity to the query.
type CompositeRanker struct {
	weights       domain.Weights
	maxDistanceKm float64
}

// NewCompositeRanker creates a ranker. A non-positive maxDistanceKm defaults
// to 50 km.
func NewCompositeRanker(weights domain.Weights, maxDistanceKm float64) *CompositeRanker {
	if maxDistanceKm <= 0 {
		maxDistanceKm = 50
	}
	return &CompositeRanker{weights: weights, maxDistanceKm: maxDistanceKm}
}

// Components computes the similarity terms between q and it.
func (r *CompositeRanker) Components(q domain.Query, it domain.Item, semantic float64) domain.Components {
	if math.IsNaN(semantic) {
		semantic = 0
	}
	return domain.Components{
		Semantic: semantic,
		Price:    PriceSimilarity(q.PriceNum, it.PriceNum),
		Location: LocationSimilarity(q.Latitude, q.Longitude, it.Latitude, it.Longitude, r.maxDistanceKm),
		Quantity: QuantitySimilarity(q.QuantityNum, it.QuantityNum),
	}
}

// Rank scores the candidates and returns the topK best. The sort is stable,
// so equal composite scores keep the candidate order.
func (r *CompositeRanker) Rank(q domain.Query, items []domain.Item, candidates []Candidate, topK int) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.Row < 0 || c.Row >= len(items) {
			continue
		}
		it := items[c.Row]
		comp := r.Components(q, it, c.Score)
		ranked = append(ranked, Ranked{
			Row:        c.Row,
			ID:         it.ID,
			Score:      r.weights.Combine(comp),
			Components: comp,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
