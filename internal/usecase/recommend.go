package usecase

import (
	"context"
	"fmt"

	"agrirec/internal/adapter/cache"
	"agrirec/internal/adapter/retriever"
	"agrirec/internal/domain"
	"go.uber.org/zap"
)

// RecommendOptions configures ranking.
type RecommendOptions struct {
	TopK          int
	CandidatePool int
	MaxDistanceKm float64
	Weights       domain.Weights
}

// RecommendUseCase ranks catalog items against a query.
type RecommendUseCase struct {
	catalog *Catalog
	ranker  *retriever.CompositeRanker
	opts    RecommendOptions
	cache   *cache.QueryCache
	log     *zap.Logger
}

// NewRecommendUseCase creates a recommend use case. qc may be nil to disable
// caching; otherwise it is invalidated on every corpus publish.
func NewRecommendUseCase(catalog *Catalog, opts RecommendOptions, qc *cache.QueryCache, log *zap.Logger) *RecommendUseCase {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = 20
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = 100
	}
	u := &RecommendUseCase{
		catalog: catalog,
		ranker:  retriever.NewCompositeRanker(opts.Weights, opts.MaxDistanceKm),
		opts:    opts,
		cache:   qc,
		log:     log,
	}
	if qc != nil {
		catalog.Subscribe(qc.Invalidate)
	}
	return u
}

// Recommend returns up to topK items ordered by composite score. topK <= 0
// uses the configured default. An empty corpus yields an empty result.
func (u *RecommendUseCase) Recommend(ctx context.Context, q domain.Query, topK int) ([]domain.ScoredItem, error) {
	if topK <= 0 {
		topK = u.opts.TopK
	}

	var key string
	if u.cache != nil {
		key = cache.Key(q, topK)
		if results, ok := u.cache.Get(key); ok {
			return results, nil
		}
	}

	ranked, generation, err := u.rank(ctx, q, topK)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ScoredItem, len(ranked))
	for i, r := range ranked {
		results[i] = domain.ScoredItem{ID: r.ID, Score: r.Score}
	}

	if u.cache != nil {
		u.cache.Put(key, generation, results)
	}
	return results, nil
}

// Explain ranks like Recommend but keeps the individual similarity terms.
// It bypasses the cache.
func (u *RecommendUseCase) Explain(ctx context.Context, q domain.Query, topK int) ([]retriever.Ranked, error) {
	if topK <= 0 {
		topK = u.opts.TopK
	}
	ranked, _, err := u.rank(ctx, q, topK)
	return ranked, err
}

func (u *RecommendUseCase) rank(ctx context.Context, q domain.Query, topK int) ([]retriever.Ranked, uint64, error) {
	corpus, err := u.catalog.Snapshot()
	if err != nil {
		return nil, 0, err
	}
	if corpus.Len() == 0 {
		return []retriever.Ranked{}, corpus.Generation, nil
	}

	for _, p := range q.Problems {
		u.log.Debug("query field ignored", zap.String("field", p.Field), zap.String("value", p.Value), zap.String("reason", p.Reason))
	}

	vecs, err := u.catalog.Encoder().Embed(ctx, []string{q.Text()})
	if err != nil {
		return nil, 0, err
	}
	if len(vecs) != 1 {
		return nil, 0, &domain.EncodingError{Model: u.catalog.Encoder().ModelName(), Err: fmt.Errorf("got %d vectors for 1 query", len(vecs))}
	}

	candidates := retriever.SemanticSearch(corpus.Vectors, vecs[0], u.opts.CandidatePool)
	ranked := u.ranker.Rank(q, corpus.Items, candidates, topK)

	u.log.Debug("query ranked",
		zap.String("query", q.Text()),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(ranked)),
		zap.Uint64("generation", corpus.Generation),
	)
	return ranked, corpus.Generation, nil
}
