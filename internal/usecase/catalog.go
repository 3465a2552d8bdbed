package usecase

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"agrirec/internal/domain"
	"agrirec/internal/port"
	"go.uber.org/zap"
)

// Corpus is an immutable snapshot of the catalog. Row i of Vectors belongs
// to Items[i].
type Corpus struct {
	Items      []domain.Item
	Vectors    *domain.Matrix
	Generation uint64
	LoadedAt   time.Time

	// Misaligned is set when the stores disagree on the row count; only the
	// common prefix is served.
	Misaligned bool
}

// Len returns the number of rankable rows.
func (c *Corpus) Len() int {
	return len(c.Items)
}

// Catalog owns the persisted stores, the journal and the encoder, and
// publishes the current Corpus. Readers take a snapshot without locking;
// every mutation goes through the single writer lock.
type Catalog struct {
	embeddings port.EmbeddingStore
	metadata   port.MetadataTable
	journal    port.Journal
	encoder    port.Embedder
	log        *zap.Logger

	writeMu sync.Mutex
	corpus  atomic.Pointer[Corpus]

	subMu       sync.Mutex
	subscribers []func(generation uint64)
}

// NewCatalog creates a catalog. Nothing is loaded until Reload or Recover.
func NewCatalog(
	embeddings port.EmbeddingStore,
	metadata port.MetadataTable,
	journal port.Journal,
	encoder port.Embedder,
	log *zap.Logger,
) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		embeddings: embeddings,
		metadata:   metadata,
		journal:    journal,
		encoder:    encoder,
		log:        log,
	}
}

// Encoder returns the encoder used for items and queries.
func (c *Catalog) Encoder() port.Embedder {
	return c.encoder
}

// Snapshot returns the published corpus.
func (c *Catalog) Snapshot() (*Corpus, error) {
	corpus := c.corpus.Load()
	if corpus == nil {
		return nil, domain.ErrCorpusUnavailable
	}
	return corpus, nil
}

// Subscribe registers fn to run after every publish. When a corpus is
// already loaded fn runs immediately with its generation.
func (c *Catalog) Subscribe(fn func(generation uint64)) {
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.subMu.Unlock()

	if corpus := c.corpus.Load(); corpus != nil {
		fn(corpus.Generation)
	}
}

// Reload reads both stores and publishes a new snapshot.
func (c *Catalog) Reload() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.reloadLocked()
}

func (c *Catalog) reloadLocked() error {
	items, err := c.metadata.Load()
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	vectors, err := c.embeddings.Load()
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	if vectors.Rows > 0 && c.encoder != nil && vectors.Dim != c.encoder.Dimension() {
		return &domain.StorageReadError{
			Path: "embeddings",
			Err:  &domain.DimensionMismatchError{Expected: c.encoder.Dimension(), Actual: vectors.Dim},
		}
	}

	next := &Corpus{
		Items:    items,
		Vectors:  vectors,
		LoadedAt: time.Now(),
	}
	if len(items) != vectors.Rows {
		n := min(len(items), vectors.Rows)
		c.log.Error("metadata and embedding rows are not aligned; serving common prefix",
			zap.Int("metadata_rows", len(items)),
			zap.Int("embedding_rows", vectors.Rows),
			zap.Int("served_rows", n),
		)
		next.Items = items[:n]
		next.Vectors = vectors.Head(n)
		next.Misaligned = true
	}

	if prev := c.corpus.Load(); prev != nil {
		next.Generation = prev.Generation + 1
	} else {
		next.Generation = 1
	}
	c.corpus.Store(next)

	c.log.Debug("corpus published",
		zap.Int("items", next.Len()),
		zap.Uint64("generation", next.Generation),
	)
	c.notify(next.Generation)
	return nil
}

func (c *Catalog) notify(generation uint64) {
	c.subMu.Lock()
	subs := append([]func(uint64){}, c.subscribers...)
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(generation)
	}
}

// appendLocked persists items and their vectors as one journaled append.
// The caller holds writeMu.
func (c *Catalog) appendLocked(items []domain.Item, vectors [][]float32) error {
	if len(items) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d items", len(vectors), len(items))
	}

	prevRows, err := c.embeddings.Rows()
	if err != nil {
		return fmt.Errorf("failed to count embedding rows: %w", err)
	}
	prevSize, err := c.metadata.Size()
	if err != nil {
		return fmt.Errorf("failed to stat metadata: %w", err)
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	seq, err := c.journal.Begin(port.JournalEntry{
		IDs:           ids,
		PrevRows:      prevRows,
		PrevMetaSize:  prevSize,
		EmbeddingRows: len(vectors),
	})
	if err != nil {
		return fmt.Errorf("failed to begin journal entry: %w", err)
	}

	if err := c.metadata.Append(items...); err != nil {
		if rbErr := c.metadata.Truncate(prevSize); rbErr != nil {
			return &domain.IngestionPartialFailure{Stage: domain.StageMetadata, Err: errors.Join(err, rbErr)}
		}
		c.abort(seq)
		return fmt.Errorf("failed to append metadata: %w", err)
	}

	if err := c.embeddings.Append(vectors...); err != nil {
		if rbErr := c.metadata.Truncate(prevSize); rbErr != nil {
			c.log.Error("metadata rollback failed; stores diverged",
				zap.Uint64("journal_seq", seq),
				zap.Error(rbErr),
			)
			return &domain.IngestionPartialFailure{Stage: domain.StageRollback, Err: errors.Join(err, rbErr)}
		}
		c.abort(seq)
		return fmt.Errorf("failed to append embeddings (metadata rolled back): %w", err)
	}

	if err := c.journal.Commit(seq); err != nil {
		// Both stores hold the rows; recovery rolls this entry forward.
		c.log.Warn("journal commit failed", zap.Uint64("journal_seq", seq), zap.Error(err))
	}
	return nil
}

func (c *Catalog) abort(seq uint64) {
	if err := c.journal.Abort(seq); err != nil {
		c.log.Warn("journal abort failed", zap.Uint64("journal_seq", seq), zap.Error(err))
	}
}

// RecoveryReport describes what Recover did with pending journal entries.
type RecoveryReport struct {
	RolledForward int `json:"rolled_forward"`
	RolledBack    int `json:"rolled_back"`
}

// Recover resolves journal entries left by an interrupted append and
// publishes the repaired corpus. An entry whose embedding rows all landed is
// committed; anything else is cut back to the recorded sizes.
func (c *Catalog) Recover() (RecoveryReport, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var report RecoveryReport
	pending, err := c.journal.Pending()
	if err != nil {
		return report, fmt.Errorf("failed to read journal: %w", err)
	}

	// Newest first, so each rollback point is still the end of the files.
	for i := len(pending) - 1; i >= 0; i-- {
		entry := pending[i]
		rows, err := c.embeddings.Rows()
		if err != nil {
			return report, fmt.Errorf("failed to count embedding rows: %w", err)
		}

		if rows == entry.PrevRows+entry.EmbeddingRows {
			if err := c.journal.Commit(entry.Seq); err != nil {
				return report, fmt.Errorf("failed to commit journal entry %d: %w", entry.Seq, err)
			}
			report.RolledForward++
			c.log.Info("journal entry rolled forward", zap.Uint64("journal_seq", entry.Seq), zap.Strings("ids", entry.IDs))
			continue
		}

		if err := c.metadata.Truncate(entry.PrevMetaSize); err != nil {
			return report, &domain.IngestionPartialFailure{Stage: domain.StageJournal, Err: err}
		}
		if err := c.embeddings.Truncate(entry.PrevRows); err != nil {
			return report, &domain.IngestionPartialFailure{Stage: domain.StageJournal, Err: err}
		}
		if err := c.journal.Abort(entry.Seq); err != nil {
			return report, fmt.Errorf("failed to abort journal entry %d: %w", entry.Seq, err)
		}
		report.RolledBack++
		c.log.Warn("journal entry rolled back", zap.Uint64("journal_seq", entry.Seq), zap.Strings("ids", entry.IDs))
	}

	return report, c.reloadLocked()
}

// Verify reports the persisted row counts without touching the snapshot.
func (c *Catalog) Verify() (domain.Stats, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var stats domain.Stats
	var err error
	if stats.MetadataRows, err = c.metadata.Rows(); err != nil {
		return stats, err
	}
	m, err := c.embeddings.Load()
	if err != nil {
		return stats, err
	}
	stats.EmbeddingRows = m.Rows
	stats.Dimension = m.Dim
	stats.Aligned = stats.MetadataRows == stats.EmbeddingRows

	pending, err := c.journal.Pending()
	if err != nil {
		return stats, err
	}
	stats.Pending = len(pending)
	if c.encoder != nil {
		stats.Model = c.encoder.ModelName()
	}
	if corpus := c.corpus.Load(); corpus != nil {
		stats.Generation = corpus.Generation
	}
	return stats, nil
}

// Stats describes the published snapshot.
func (c *Catalog) Stats() (domain.Stats, error) {
	corpus, err := c.Snapshot()
	if err != nil {
		return domain.Stats{}, err
	}
	stats := domain.Stats{
		MetadataRows:  corpus.Len(),
		EmbeddingRows: corpus.Vectors.Rows,
		Dimension:     corpus.Vectors.Dim,
		Aligned:       !corpus.Misaligned,
		Generation:    corpus.Generation,
	}
	if c.encoder != nil {
		stats.Model = c.encoder.ModelName()
	}
	return stats, nil
}
