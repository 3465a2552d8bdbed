package memstore

import (
	"fmt"
	"sort"
	"sync"

	"agrirec/internal/domain"
	"agrirec/internal/port"
)

// EmbeddingStore keeps the embedding matrix in memory. Errors set with
// FailAppend / FailTruncate are returned by the next calls until cleared.
type EmbeddingStore struct {
	mu          sync.RWMutex
	rows        [][]float32
	dimension   int
	appendErr   error
	truncateErr error
}

var _ port.EmbeddingStore = (*EmbeddingStore)(nil)

func NewEmbeddingStore(dimension int) *EmbeddingStore {
	return &EmbeddingStore{dimension: dimension}
}

func (s *EmbeddingStore) FailAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

func (s *EmbeddingStore) FailTruncate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncateErr = err
}

func (s *EmbeddingStore) Load() (*domain.Matrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := &domain.Matrix{Dim: s.dimension}
	for _, r := range s.rows {
		if err := m.AppendRow(append([]float32(nil), r...)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (s *EmbeddingStore) Append(vectors ...[]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appendErr != nil {
		return s.appendErr
	}
	for _, v := range vectors {
		if s.dimension > 0 && len(v) != s.dimension {
			return &domain.DimensionMismatchError{Expected: s.dimension, Actual: len(v)}
		}
	}
	for _, v := range vectors {
		s.rows = append(s.rows, append([]float32(nil), v...))
	}
	return nil
}

func (s *EmbeddingStore) Truncate(rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.truncateErr != nil {
		return s.truncateErr
	}
	if rows < len(s.rows) {
		s.rows = s.rows[:rows]
	}
	return nil
}

func (s *EmbeddingStore) Replace(m *domain.Matrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = s.rows[:0]
	for i := 0; i < m.Rows; i++ {
		s.rows = append(s.rows, append([]float32(nil), m.Row(i)...))
	}
	return nil
}

func (s *EmbeddingStore) Rows() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// MetadataTable keeps item rows in memory. Its size is the row count, which
// serves as the rollback point for Truncate.
type MetadataTable struct {
	mu          sync.RWMutex
	items       []domain.Item
	appendErr   error
	truncateErr error
}

var _ port.MetadataTable = (*MetadataTable)(nil)

func NewMetadataTable() *MetadataTable {
	return &MetadataTable{}
}

func (t *MetadataTable) FailAppend(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendErr = err
}

func (t *MetadataTable) FailTruncate(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.truncateErr = err
}

func (t *MetadataTable) Load() ([]domain.Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	items := make([]domain.Item, len(t.items))
	copy(items, t.items)
	return items, nil
}

func (t *MetadataTable) Append(items ...domain.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.appendErr != nil {
		return t.appendErr
	}
	t.items = append(t.items, items...)
	return nil
}

func (t *MetadataTable) Size() (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int64(len(t.items)), nil
}

func (t *MetadataTable) Truncate(size int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.truncateErr != nil {
		return t.truncateErr
	}
	if int(size) < len(t.items) {
		t.items = t.items[:size]
	}
	return nil
}

func (t *MetadataTable) Rows() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items), nil
}

// Journal is an in-memory port.Journal. It does not survive a restart, so
// it only suits throwaway catalogs.
type Journal struct {
	mu      sync.Mutex
	seq     uint64
	pending map[uint64]port.JournalEntry
	ids     map[string][]int
}

var _ port.Journal = (*Journal)(nil)

func NewJournal() *Journal {
	return &Journal{
		pending: make(map[uint64]port.JournalEntry),
		ids:     make(map[string][]int),
	}
}

func (j *Journal) Begin(entry port.JournalEntry) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	entry.Seq = j.seq
	entry.IDs = append([]string(nil), entry.IDs...)
	j.pending[entry.Seq] = entry
	return entry.Seq, nil
}

func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, ok := j.pending[seq]
	if !ok {
		return fmt.Errorf("journal entry not found: %d", seq)
	}
	for i, id := range entry.IDs {
		j.ids[id] = append(j.ids[id], entry.PrevRows+i)
	}
	delete(j.pending, seq)
	return nil
}

func (j *Journal) Abort(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.pending, seq)
	return nil
}

func (j *Journal) Pending() ([]port.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := make([]port.JournalEntry, 0, len(j.pending))
	for _, e := range j.pending {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Seq < entries[b].Seq })
	return entries, nil
}

func (j *Journal) HasID(id string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.ids[id]
	return ok, nil
}

func (j *Journal) ReindexIDs(ids []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.ids = make(map[string][]int, len(ids))
	for i, id := range ids {
		j.ids[id] = append(j.ids[id], i)
	}
	return nil
}

func (j *Journal) Close() error {
	return nil
}
