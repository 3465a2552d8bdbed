package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"agrirec/config"
	"agrirec/internal/adapter/embedding"
	"agrirec/internal/adapter/memstore"
	"agrirec/internal/adapter/store"
	"agrirec/internal/domain"
	"agrirec/internal/port"
	"agrirec/internal/usecase"
)

func main() {
	dataDir := flag.String("dir", ".", "Directory holding agrirec.yaml and the data directory")
	synthetic := flag.Int("synthetic", 0, "Rank against N generated listings instead of a data directory")
	category := flag.String("category", "", "Query category")
	product := flag.String("q", "", "Query product")
	price := flag.String("price", "", "Query price text")
	lat := flag.Float64("lat", 21.0, "Query latitude")
	lon := flag.Float64("lon", 105.8, "Query longitude")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("n", 50, "Timed repetitions")
	flag.Parse()

	if *product == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -dir ./data -q \"cà chua\" [-category ...] [-price ...]")
		fmt.Println("       go run cmd/benchmark/main.go -synthetic 10000 -q \"xoài\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Encoder and corpus (model, dimension, rows)")
		fmt.Println("  2. Ranking quality (semantic term of the top results)")
		fmt.Println("  3. Query latency over -n repetitions")
		os.Exit(1)
	}

	ctx := context.Background()
	cfg, err := config.LoadFromDir(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	var catalog *usecase.Catalog
	if *synthetic > 0 {
		catalog, err = syntheticCatalog(ctx, *synthetic)
	} else {
		catalog, err = openCatalog(ctx, cfg, *dataDir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Corpus not available: %v\n", err)
		os.Exit(1)
	}

	rec := usecase.NewRecommendUseCase(catalog, usecase.RecommendOptions{
		TopK:          *topK,
		CandidatePool: cfg.Ranking.CandidatePool,
		MaxDistanceKm: cfg.Ranking.MaxDistanceKm,
		Weights:       cfg.Ranking.Weights,
	}, nil, nil)

	q := domain.NewQuery(domain.QueryPayload{
		CategoryName: *category,
		ProductName:  *product,
		Price:        *price,
		Latitude:     lat,
		Longitude:    lon,
	})

	stats, _ := catalog.Stats()
	fmt.Println("RANKING BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Listings:  %d\n", stats.MetadataRows)
	fmt.Printf("Model:     %s\n", catalog.Encoder().ModelName())
	fmt.Printf("Dimension: %d\n", catalog.Encoder().Dimension())
	fmt.Println()
	fmt.Printf("Query: \"%s\"\n", q.Text())
	fmt.Println(strings.Repeat("-", 70))

	results, err := rec.Explain(ctx, q, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ranking error: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	items := make(map[string]domain.Item)
	if corpus, err := catalog.Snapshot(); err == nil {
		for _, r := range results {
			items[r.ID] = corpus.Items[r.Row]
		}
	}

	totalSemantic := 0.0
	for i, r := range results {
		semantic := r.Components.Semantic
		totalSemantic += semantic

		rating := "LOW"
		if semantic > 0.7 {
			rating = "HIGH"
		} else if semantic > 0.5 {
			rating = "GOOD"
		} else if semantic > 0.3 {
			rating = "OK"
		}

		it := items[r.ID]
		fmt.Printf("%d. [%s %.3f] %s  score=%.3f\n", i+1, rating, semantic, r.ID, r.Score)
		fmt.Printf("   %s | %s | %s\n\n", it.SemanticText, it.Price, it.Province)
	}

	latencies := make([]time.Duration, 0, *runs)
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if _, err := rec.Recommend(ctx, q, *topK); err != nil {
			fmt.Fprintf(os.Stderr, "Ranking error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}
	sort.Slice(latencies, func(a, b int) bool { return latencies[a] < latencies[b] })

	avgSemantic := totalSemantic / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average semantic:   %.3f\n", avgSemantic)
	fmt.Printf("  Top-1 score:        %.3f\n", results[0].Score)
	if len(latencies) > 0 {
		fmt.Printf("LATENCY (%d runs):\n", len(latencies))
		fmt.Printf("  p50: %s\n", latencies[len(latencies)/2])
		fmt.Printf("  p95: %s\n", latencies[len(latencies)*95/100])
	}

	if avgSemantic > 0.5 {
		fmt.Println("  Status: GOOD - semantic matches are strong")
	} else if avgSemantic > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - consider a stronger encoder and 'agrirec rebuild'")
	}
}

// openCatalog loads an existing data directory without taking the journal
// lock, so it can run next to a live server.
func openCatalog(ctx context.Context, cfg *config.Config, root string) (*usecase.Catalog, error) {
	enc, err := embedding.New(ctx, cfg.Embedding, nil)
	if err != nil {
		return nil, fmt.Errorf("encoder init failed: %w", err)
	}
	catalog := usecase.NewCatalog(
		store.NewNpyEmbeddingStore(cfg.EmbeddingsPath(root), enc.Dimension()),
		store.NewCSVMetadataTable(cfg.MetadataPath(root)),
		memstore.NewJournal(),
		enc,
		nil,
	)
	if err := catalog.Reload(); err != nil {
		return nil, err
	}
	corpus, _ := catalog.Snapshot()
	if corpus.Len() == 0 {
		return nil, fmt.Errorf("no listings - run 'agrirec import' first")
	}
	return catalog, nil
}

var (
	categories = map[string][]string{
		"Rau củ":     {"cà chua", "cà rốt", "bắp cải", "su hào", "rau muống"},
		"Cây ăn quả": {"xoài", "sầu riêng", "thanh long", "bưởi", "nhãn"},
		"Lúa gạo":    {"gạo ST25", "lúa nếp", "gạo tám thơm"},
		"Cà phê":     {"cà phê robusta", "cà phê arabica"},
	}
	provinces = []string{"Hà Nội", "Hải Phòng", "Lâm Đồng", "Đắk Lắk", "Cần Thơ", "Tiền Giang"}
)

// syntheticCatalog fills an in-memory catalog with n generated listings
// spread over Vietnam.
func syntheticCatalog(ctx context.Context, n int) (*usecase.Catalog, error) {
	const dim = 384
	var enc port.Embedder = embedding.NewGuard(embedding.NewHashEmbedder(dim, ""), embedding.GuardOptions{Dimension: dim}, nil)
	catalog := usecase.NewCatalog(memstore.NewEmbeddingStore(dim), memstore.NewMetadataTable(), memstore.NewJournal(), enc, nil)
	if err := catalog.Reload(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	sort.Strings(names)

	rng := rand.New(rand.NewSource(42))
	payloads := make([]domain.ItemPayload, n)
	for i := range payloads {
		cat := names[rng.Intn(len(names))]
		products := categories[cat]
		lat := 9.0 + rng.Float64()*12.5
		lon := 104.5 + rng.Float64()*4.0
		payloads[i] = domain.ItemPayload{
			ID:           fmt.Sprintf("syn-%06d", i),
			CategoryName: cat,
			ProductName:  products[rng.Intn(len(products))],
			Price:        fmt.Sprintf("%d.%03d đ/kg", 5+rng.Intn(80), rng.Intn(1000)),
			Quantity:     fmt.Sprintf("%d kg", 10+rng.Intn(5000)),
			Latitude:     &lat,
			Longitude:    &lon,
			Address:      "Xã A, Huyện B, " + provinces[rng.Intn(len(provinces))],
		}
	}

	ingest := usecase.NewIngestUseCase(catalog, usecase.IngestOptions{
		Encode: usecase.EncodeOptions{BatchSize: 256, Concurrency: 4},
	}, nil)
	start := time.Now()
	if res := ingest.IngestBatch(ctx, payloads, nil); !res.OK() {
		return nil, fmt.Errorf("synthetic ingest failed: %s", res.Message)
	}
	fmt.Printf("Generated %d listings in %s\n\n", n, time.Since(start).Round(time.Millisecond))
	return catalog, nil
}
