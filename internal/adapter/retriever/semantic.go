package retriever

import (
	"math"
	"sort"

	"agrirec/internal/domain"
)

// Candidate is a matrix row that survived the semantic pre-filter.
type Candidate struct {
	Row   int
	Score float64
}

// SemanticSearch scores every row of m against the unit-length query vector
// and keeps the pool best rows, ordered by score descending and then by row
// index. Stored rows are unit length, so the inner product is the cosine.
func SemanticSearch(m *domain.Matrix, query []float32, pool int) []Candidate {
	if m.Empty() || len(query) != m.Dim {
		return nil
	}

	candidates := make([]Candidate, m.Rows)
	for i := 0; i < m.Rows; i++ {
		score := Dot(query, m.Row(i))
		if math.IsNaN(score) {
			score = 0
		}
		candidates[i] = Candidate{Row: i, Score: score}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Row < candidates[j].Row
	})

	if pool > 0 && len(candidates) > pool {
		candidates = candidates[:pool]
	}
	return candidates
}
