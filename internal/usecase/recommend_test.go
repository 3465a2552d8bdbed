package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"agrirec/internal/adapter/cache"
	"agrirec/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRecommendOptions() RecommendOptions {
	return RecommendOptions{TopK: 20, CandidatePool: 100, MaxDistanceKm: 50, Weights: domain.DefaultWeights()}
}

func TestRecommendThreeItemScenario(t *testing.T) {
	f := newFixture(t, hashEncoder())
	ingest := NewIngestUseCase(f.catalog, IngestOptions{}, nil)
	ctx := context.Background()

	for _, p := range []domain.ItemPayload{
		payload("A", "Rau củ", "cà chua", "10.000 đ/kg", 21.0, 105.8),
		payload("B", "Rau củ", "cà rốt", "12.000 đ/kg", 21.05, 105.85),
		payload("C", "Cây ăn quả", "xoài", "30.000 đ/kg", 10.0, 106.0),
	} {
		require.True(t, ingest.ProcessAndAddItem(ctx, p).OK())
	}

	rec := NewRecommendUseCase(f.catalog, defaultRecommendOptions(), nil, nil)
	q := domain.NewQuery(domain.QueryPayload{
		CategoryName: "Rau củ",
		ProductName:  "cà chua",
		Price:        "10.000 đ/kg",
		Latitude:     ptr(21.0),
		Longitude:    ptr(105.8),
		Address:      "Hà Nội",
	})

	results, err := rec.Recommend(ctx, q, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{results[0].ID, results[1].ID, results[2].ID})
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	explained, err := rec.Explain(ctx, q, 1)
	require.NoError(t, err)
	require.Len(t, explained, 1)
	assert.Equal(t, 1.0, explained[0].Components.Price)
	assert.Equal(t, 1.0, explained[0].Components.Location)
}

func TestRecommendTopKAndDefaults(t *testing.T) {
	f := newFixture(t, hashEncoder())
	ingest := NewIngestUseCase(f.catalog, IngestOptions{}, nil)
	ctx := context.Background()

	var payloads []domain.ItemPayload
	for i := 0; i < 30; i++ {
		payloads = append(payloads, payload(fmt.Sprintf("p%d", i), "Trái cây", fmt.Sprintf("loại %d", i), fmt.Sprintf("%d.000 đ", i+1), 10, 106))
	}
	require.True(t, ingest.IngestBatch(ctx, payloads, nil).OK())

	opts := defaultRecommendOptions()
	opts.TopK = 7
	rec := NewRecommendUseCase(f.catalog, opts, nil, nil)
	q := domain.NewQuery(domain.QueryPayload{CategoryName: "Trái cây", ProductName: "loại 3"})

	results, err := rec.Recommend(ctx, q, 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)

	results, err = rec.Recommend(ctx, q, 0)
	require.NoError(t, err)
	assert.Len(t, results, 7)

	results, err = rec.Recommend(ctx, q, 1000)
	require.NoError(t, err)
	assert.Len(t, results, 30)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRecommendEmptyCorpus(t *testing.T) {
	f := newFixture(t, hashEncoder())
	rec := NewRecommendUseCase(f.catalog, defaultRecommendOptions(), nil, nil)

	results, err := rec.Recommend(context.Background(), domain.NewQuery(domain.QueryPayload{ProductName: "xoài"}), 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRecommendErrors(t *testing.T) {
	c := NewCatalog(nil, nil, nil, hashEncoder(), nil)
	rec := NewRecommendUseCase(c, defaultRecommendOptions(), nil, nil)
	_, err := rec.Recommend(context.Background(), domain.Query{}, 5)
	assert.ErrorIs(t, err, domain.ErrCorpusUnavailable)

	f := newFixture(t, hashEncoder())
	require.True(t, NewIngestUseCase(f.catalog, IngestOptions{}, nil).ProcessAndAddItem(context.Background(), payload("a", "Rau", "cải", "1", 0, 0)).OK())
	broken := NewCatalog(f.vectors, f.metadata, f.journal, failingEncoder{err: errBoom}, nil)
	require.NoError(t, broken.Reload())

	_, err = NewRecommendUseCase(broken, defaultRecommendOptions(), nil, nil).Recommend(context.Background(), domain.Query{}, 5)
	var ee *domain.EncodingError
	assert.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, errBoom)
}

func TestRecommendUnparseableQueryFieldsDegrade(t *testing.T) {
	f := newFixture(t, hashEncoder())
	require.True(t, NewIngestUseCase(f.catalog, IngestOptions{}, nil).ProcessAndAddItem(context.Background(), payload("a", "Rau", "cải", "1.000", 0, 0)).OK())

	q := domain.NewQuery(domain.QueryPayload{ProductName: "cải", Price: "liên hệ", Quantity: "nhiều"})
	require.Len(t, q.Problems, 2)

	explained, err := NewRecommendUseCase(f.catalog, defaultRecommendOptions(), nil, nil).Explain(context.Background(), q, 5)
	require.NoError(t, err)
	require.Len(t, explained, 1)
	assert.Zero(t, explained[0].Components.Price)
	assert.Zero(t, explained[0].Components.Quantity)
	assert.Zero(t, explained[0].Components.Location)
}

func TestRecommendCacheInvalidatedByIngestion(t *testing.T) {
	f := newFixture(t, hashEncoder())
	ingest := NewIngestUseCase(f.catalog, IngestOptions{}, nil)
	ctx := context.Background()
	require.True(t, ingest.ProcessAndAddItem(ctx, payload("old", "Rau củ", "cải ngọt", "5.000", 21, 105.8)).OK())

	qc := cache.NewQueryCache(16, time.Minute)
	rec := NewRecommendUseCase(f.catalog, defaultRecommendOptions(), qc, nil)
	q := domain.NewQuery(domain.QueryPayload{CategoryName: "Rau củ", ProductName: "cà chua"})

	first, err := rec.Recommend(ctx, q, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, qc.Size())

	require.True(t, ingest.ProcessAndAddItem(ctx, payload("new", "Rau củ", "cà chua", "5.000", 21, 105.8)).OK())
	assert.Zero(t, qc.Size())

	second, err := rec.Recommend(ctx, q, 5)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "new", second[0].ID)
}

func TestConcurrentRecommendDuringIngestion(t *testing.T) {
	f := newFixture(t, hashEncoder())
	ingest := NewIngestUseCase(f.catalog, IngestOptions{}, nil)
	rec := NewRecommendUseCase(f.catalog, defaultRecommendOptions(), cache.NewQueryCache(8, time.Minute), nil)
	ctx := context.Background()
	q := domain.NewQuery(domain.QueryPayload{CategoryName: "Rau", ProductName: "cải"})

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				results, err := rec.Recommend(ctx, q, 3)
				if err != nil {
					errs <- err
					return
				}
				if len(results) > 3 {
					errs <- fmt.Errorf("got %d results", len(results))
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := ingest.ProcessAndAddItem(ctx, payload(fmt.Sprintf("c%d", i), "Rau", fmt.Sprintf("cải %d", i), "1", 0, 0))
			if !res.OK() {
				errs <- res.Err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	stats, err := f.catalog.Verify()
	require.NoError(t, err)
	assert.True(t, stats.Aligned)
	assert.Equal(t, 8, stats.MetadataRows)
}
