package usecase

import (
	"context"
	"fmt"

	"agrirec/internal/domain"
	"go.uber.org/zap"
)

// RebuildResult summarises a rebuild.
type RebuildResult struct {
	Items     int    `json:"items"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

// Rebuild re-encodes every metadata row with the current encoder, replaces
// the embedding matrix and reindexes ids. Used after an encoder change or to
// repair a misaligned data directory. progress receives encoded counts.
func (c *Catalog) Rebuild(ctx context.Context, opts EncodeOptions, progress func(n int)) (RebuildResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	result := RebuildResult{Model: c.encoder.ModelName()}

	items, err := c.metadata.Load()
	if err != nil {
		return result, fmt.Errorf("failed to load metadata: %w", err)
	}
	if len(items) == 0 {
		return result, fmt.Errorf("nothing to rebuild: %w", domain.ErrStorageMissing)
	}

	pending, err := c.journal.Pending()
	if err != nil {
		return result, fmt.Errorf("failed to read journal: %w", err)
	}
	if len(pending) > 0 {
		return result, fmt.Errorf("%d pending journal entries; run recovery first", len(pending))
	}

	texts := make([]string, len(items))
	ids := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.SemanticText
		ids[i] = it.ID
	}

	vecs, err := encodeAll(ctx, c.encoder, texts, opts, progress)
	if err != nil {
		return result, err
	}
	m, err := domain.NewMatrix(vecs)
	if err != nil {
		return result, err
	}

	if err := c.embeddings.Replace(m); err != nil {
		return result, fmt.Errorf("failed to replace embeddings: %w", err)
	}
	if err := c.journal.ReindexIDs(ids); err != nil {
		return result, fmt.Errorf("failed to reindex ids: %w", err)
	}

	result.Items = m.Rows
	result.Dimension = m.Dim
	c.log.Info("embeddings rebuilt",
		zap.Int("items", m.Rows),
		zap.Int("dimension", m.Dim),
		zap.String("model", result.Model),
	)
	return result, c.reloadLocked()
}
