package usecase

import (
	"context"

	"agrirec/internal/port"
	"golang.org/x/sync/errgroup"
)

// EncodeOptions bounds bulk encoding.
type EncodeOptions struct {
	BatchSize   int
	Concurrency int
}

func (o EncodeOptions) normalized() EncodeOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// encodeAll embeds texts in batches, running up to Concurrency batches at
// once. Output order matches input order. progress, when set, receives the
// size of every finished batch and may be called concurrently.
func encodeAll(ctx context.Context, enc port.Embedder, texts []string, opts EncodeOptions, progress func(n int)) ([][]float32, error) {
	opts = opts.normalized()
	out := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for start := 0; start < len(texts); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := enc.Embed(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			if progress != nil {
				progress(end - start)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
