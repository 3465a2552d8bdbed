package retriever

import (
	"context"
	"math"
	"sort"
	"testing"

	"agrirec/internal/adapter/embedding"
	"agrirec/internal/domain"
)

func TestRankingQuality(t *testing.T) {
	ctx := context.Background()
	enc := embedding.NewHashEmbedder(256, "")

	catalog := []struct {
		id, category, product, price, address string
		lat, lon                              float64
	}{
		{"durian-near", "Trái cây", "Sầu riêng Ri6", "80.000 đ/kg", "Cai Lậy, Tiền Giang", 10.41, 106.12},
		{"durian-far", "Trái cây", "Sầu riêng Monthong", "95.000 đ/kg", "Krông Pắc, Đắk Lắk", 12.70, 108.30},
		{"mango", "Trái cây", "Xoài cát Hòa Lộc", "60.000 đ/kg", "Cái Bè, Tiền Giang", 10.35, 106.03},
		{"rice", "Lúa gạo", "Gạo ST25", "30.000 đ/kg", "Mỹ Xuyên, Sóc Trăng", 9.55, 105.98},
		{"greens", "Rau", "Cải ngọt", "15.000 đ/kg", "Đà Lạt, Lâm Đồng", 11.94, 108.44},
	}

	items := make([]domain.Item, len(catalog))
	texts := make([]string, len(catalog))
	for i, c := range catalog {
		lat, lon := c.lat, c.lon
		it, err := domain.NewItem(domain.ItemPayload{
			ID: c.id, CategoryName: c.category, ProductName: c.product,
			Price: c.price, Quantity: "100 kg", Address: c.address,
			Latitude: &lat, Longitude: &lon,
		})
		if err != nil {
			t.Fatal(err)
		}
		items[i] = it
		texts[i] = it.SemanticText
	}
	vecs, err := enc.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	m, err := domain.NewMatrix(vecs)
	if err != nil {
		t.Fatal(err)
	}

	lat, lon := 10.40, 106.10
	q := domain.NewQuery(domain.QueryPayload{
		CategoryName: "Trái cây", ProductName: "Sầu riêng", Price: "85.000 đ/kg",
		Quantity: "100 kg", Address: "Cai Lậy, Tiền Giang", Latitude: &lat, Longitude: &lon,
	})
	qv, err := enc.Embed(ctx, []string{q.Text()})
	if err != nil {
		t.Fatal(err)
	}

	ranked := NewCompositeRanker(domain.DefaultWeights(), 50).Rank(q, items, SemanticSearch(m, qv[0], 100), 3)
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}

	// Graded relevance: same product nearby, same product far away, same
	// category nearby.
	grades := map[string]float64{"durian-near": 3, "durian-far": 2, "mango": 1}
	if len(ids) != 3 {
		t.Fatalf("expected 3 results, got %v", ids)
	}

	if rr := reciprocalRank(ids, grades); rr != 1 {
		t.Errorf("expected a relevant listing first, got %v", ids)
	}
	if ids[0] != "durian-near" {
		t.Errorf("expected durian-near first, got %v", ids)
	}
	if r := recallAt(ids, grades); r != 1 {
		t.Errorf("recall@3 = %.2f for %v", r, ids)
	}
	if n := ndcgAt(ids, grades); n < 0.9 {
		t.Errorf("ndcg@3 = %.3f for %v", n, ids)
	}
}

// reciprocalRank is 1/rank of the first listing with a positive grade.
func reciprocalRank(ids []string, grades map[string]float64) float64 {
	for i, id := range ids {
		if grades[id] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// recallAt is the share of graded listings present in ids.
func recallAt(ids []string, grades map[string]float64) float64 {
	if len(grades) == 0 {
		return 0
	}
	hits := 0
	for _, id := range ids {
		if grades[id] > 0 {
			hits++
		}
	}
	return float64(hits) / float64(len(grades))
}

// ndcgAt compares the discounted gain of ids with the best possible order
// of the same length.
func ndcgAt(ids []string, grades map[string]float64) float64 {
	got := make([]float64, len(ids))
	for i, id := range ids {
		got[i] = grades[id]
	}
	ideal := make([]float64, 0, len(grades))
	for _, g := range grades {
		ideal = append(ideal, g)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	if len(ideal) > len(ids) {
		ideal = ideal[:len(ids)]
	}

	idcg := dcg(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg(got) / idcg
}

func dcg(gains []float64) float64 {
	var sum float64
	for i, g := range gains {
		sum += g / math.Log2(float64(i+2))
	}
	return sum
}
