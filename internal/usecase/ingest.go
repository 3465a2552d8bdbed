package usecase

import (
	"context"
	"errors"
	"fmt"

	"agrirec/internal/domain"
	"agrirec/internal/logger"
	"go.uber.org/zap"
)

// IngestOptions configures the ingestion pipeline.
type IngestOptions struct {
	RejectDuplicateIDs bool
	Encode             EncodeOptions
}

// IngestUseCase appends new items to the catalog.
type IngestUseCase struct {
	catalog *Catalog
	opts    IngestOptions
	log     *zap.Logger
}

// NewIngestUseCase creates a new ingestion use case.
func NewIngestUseCase(catalog *Catalog, opts IngestOptions, log *zap.Logger) *IngestUseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestUseCase{catalog: catalog, opts: opts, log: log}
}

// ProcessAndAddItem derives, encodes and persists one item, then publishes
// the reloaded corpus. Failures come back as an error result; nothing
// panics out of it.
func (u *IngestUseCase) ProcessAndAddItem(ctx context.Context, payload domain.ItemPayload) (result domain.IngestResult) {
	defer func() {
		if r := recover(); r != nil {
			result = u.failure(payload.ID, fmt.Errorf("panic during ingestion: %v", r))
		}
	}()

	item, err := domain.NewItem(payload)
	if err != nil {
		return u.failure(payload.ID, err)
	}

	// Encode before touching the stores so an encoder failure mutates nothing.
	vecs, err := u.catalog.Encoder().Embed(ctx, []string{item.SemanticText})
	if err != nil {
		return u.failure(item.ID, err)
	}

	if err := u.persist([]domain.Item{item}, vecs); err != nil {
		return u.failure(item.ID, err)
	}

	u.log.Info("item ingested",
		zap.String("id", item.ID),
		zap.String("semantic_text", logger.TruncateForLog(item.SemanticText, 120)),
	)
	return domain.IngestResult{
		Status:       domain.StatusSuccess,
		SemanticText: item.SemanticText,
		EmbeddingDim: len(vecs[0]),
		Items:        1,
	}
}

// IngestBatch persists many items as a single journaled append. Either every
// item lands or none does. progress receives the number of items encoded so
// far in increments.
func (u *IngestUseCase) IngestBatch(ctx context.Context, payloads []domain.ItemPayload, progress func(n int)) (result domain.IngestResult) {
	defer func() {
		if r := recover(); r != nil {
			result = u.failure("", fmt.Errorf("panic during batch ingestion: %v", r))
		}
	}()

	if len(payloads) == 0 {
		return domain.IngestResult{Status: domain.StatusSuccess}
	}

	items := make([]domain.Item, len(payloads))
	texts := make([]string, len(payloads))
	for i, p := range payloads {
		item, err := domain.NewItem(p)
		if err != nil {
			return u.failure(p.ID, fmt.Errorf("item %d: %w", i, err))
		}
		items[i] = item
		texts[i] = item.SemanticText
	}

	vecs, err := encodeAll(ctx, u.catalog.Encoder(), texts, u.opts.Encode, progress)
	if err != nil {
		return u.failure("", err)
	}

	if err := u.persist(items, vecs); err != nil {
		return u.failure("", err)
	}

	u.log.Info("batch ingested", zap.Int("items", len(items)))
	return domain.IngestResult{
		Status:       domain.StatusSuccess,
		EmbeddingDim: len(vecs[0]),
		Items:        len(items),
	}
}

func (u *IngestUseCase) persist(items []domain.Item, vecs [][]float32) error {
	c := u.catalog
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if u.opts.RejectDuplicateIDs {
		if err := c.checkDuplicates(items); err != nil {
			return err
		}
	}
	if err := c.appendLocked(items, vecs); err != nil {
		return err
	}
	if err := c.reloadLocked(); err != nil {
		return fmt.Errorf("items stored but corpus reload failed: %w", err)
	}
	return nil
}

// checkDuplicates rejects ids already committed or repeated within items.
// The caller holds writeMu.
func (c *Catalog) checkDuplicates(items []domain.Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, it.ID)
		}
		seen[it.ID] = struct{}{}

		exists, err := c.journal.HasID(it.ID)
		if err != nil {
			return fmt.Errorf("failed to check id %s: %w", it.ID, err)
		}
		if exists {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, it.ID)
		}
	}
	return nil
}

func (u *IngestUseCase) failure(id string, err error) domain.IngestResult {
	fields := []zap.Field{zap.Error(err)}
	if id != "" {
		fields = append(fields, zap.String("id", id))
	}

	var partial *domain.IngestionPartialFailure
	if errors.As(err, &partial) {
		u.log.Error("ingestion left stores diverged", append(fields, zap.String("stage", partial.Stage))...)
	} else {
		u.log.Warn("ingestion failed", fields...)
	}

	return domain.IngestResult{
		Status:  domain.StatusError,
		Message: err.Error(),
		Err:     err,
	}
}
