package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"agrirec/internal/domain"
	"agrirec/internal/logger"
	"agrirec/internal/port"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errZeroVector = errors.New("encoder returned a zero or non-finite vector")

// GuardOptions configures a Guard.
type GuardOptions struct {
	Provider          string
	Dimension         int
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unlimited
}

// Guard wraps a provider with a per-call timeout, an optional rate limit and
// output validation. Every vector it returns has the configured dimension and
// unit L2 norm; every failure is a *domain.EncodingError.
type Guard struct {
	inner     port.Embedder
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
	log       *zap.Logger
}

var _ port.Embedder = (*Guard)(nil)

// NewGuard wraps inner. A non-positive dimension falls back to the provider's.
func NewGuard(inner port.Embedder, opts GuardOptions, log *zap.Logger) *Guard {
	g := &Guard{
		inner:     inner,
		dimension: opts.Dimension,
		timeout:   opts.Timeout,
		log:       logger.WithEncoder(log, opts.Provider, inner.ModelName()),
	}
	if g.dimension <= 0 {
		g.dimension = inner.Dimension()
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(math.Ceil(opts.RequestsPerSecond))
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return g
}

func (g *Guard) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, g.fail(fmt.Errorf("rate limit wait: %w", err), len(texts))
		}
	}

	start := time.Now()
	vecs, err := g.inner.Embed(ctx, texts)
	if err != nil {
		return nil, g.fail(err, len(texts))
	}
	if len(vecs) != len(texts) {
		return nil, g.fail(fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts)), len(texts))
	}

	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != g.dimension {
			return nil, g.fail(&domain.DimensionMismatchError{Expected: g.dimension, Actual: len(v)}, len(texts))
		}
		n, ok := Normalize(v)
		if !ok {
			return nil, g.fail(fmt.Errorf("input %d: %w", i, errZeroVector), len(texts))
		}
		out[i] = n
	}

	g.log.Debug("encoded texts",
		zap.Int("count", len(texts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (g *Guard) fail(err error, count int) error {
	g.log.Warn("encoding failed", zap.Int("count", count), zap.Error(err))
	return &domain.EncodingError{Model: g.inner.ModelName(), Err: err}
}

func (g *Guard) Dimension() int {
	return g.dimension
}

func (g *Guard) ModelName() string {
	return g.inner.ModelName()
}

// Normalize returns a unit-length copy of v. It reports false for zero or
// non-finite input.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return v, false
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}
