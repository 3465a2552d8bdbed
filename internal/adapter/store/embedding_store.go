package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"agrirec/internal/domain"
)

// NpyEmbeddingStore keeps the embedding matrix in a single .npy file.
// Appends rewrite the whole file with the new rows stacked on.
type NpyEmbeddingStore struct {
	path      string
	dimension int
	mu        sync.Mutex
}

// NewNpyEmbeddingStore creates a store for path. A positive dimension is
// enforced on every append; 0 accepts whatever the first row sets.
func NewNpyEmbeddingStore(path string, dimension int) *NpyEmbeddingStore {
	return &NpyEmbeddingStore{path: path, dimension: dimension}
}

// Path returns the backing file.
func (s *NpyEmbeddingStore) Path() string {
	return s.path
}

// Load reads the persisted matrix. A missing file is an empty matrix.
func (s *NpyEmbeddingStore) Load() (*domain.Matrix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *NpyEmbeddingStore) load() (*domain.Matrix, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.Matrix{Dim: s.dimension}, nil
		}
		return nil, &domain.StorageReadError{Path: s.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &domain.StorageReadError{Path: s.path, Err: err}
	}
	m, err := readNpy(f, info.Size())
	if err != nil {
		return nil, &domain.StorageReadError{Path: s.path, Err: err}
	}
	if m.Rows > 0 && s.dimension > 0 && m.Dim != s.dimension {
		return nil, &domain.StorageReadError{
			Path: s.path,
			Err:  &domain.DimensionMismatchError{Expected: s.dimension, Actual: m.Dim},
		}
	}
	return m, nil
}

// Append stacks vectors onto the stored matrix and rewrites the file.
func (s *NpyEmbeddingStore) Append(vectors ...[]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}

	want := s.dimension
	if m.Rows > 0 {
		want = m.Dim
	}
	for _, v := range vectors {
		if want == 0 {
			want = len(v)
		}
		if len(v) != want || len(v) == 0 {
			return &domain.DimensionMismatchError{Expected: want, Actual: len(v)}
		}
	}

	// Copy so the caller's snapshot (which may share Data) is never touched.
	next := &domain.Matrix{
		Rows: m.Rows,
		Dim:  want,
		Data: make([]float32, len(m.Data), len(m.Data)+len(vectors)*want),
	}
	copy(next.Data, m.Data)
	for _, v := range vectors {
		if err := next.AppendRow(v); err != nil {
			return err
		}
	}
	return s.write(next)
}

// Truncate keeps the first rows rows.
func (s *NpyEmbeddingStore) Truncate(rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if rows >= m.Rows {
		return nil
	}
	return s.write(m.Head(rows))
}

// Replace overwrites the stored matrix.
func (s *NpyEmbeddingStore) Replace(m *domain.Matrix) error {
	if m.Rows > 0 && s.dimension > 0 && m.Dim != s.dimension {
		return &domain.DimensionMismatchError{Expected: s.dimension, Actual: m.Dim}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(m)
}

// Rows reads only the header.
func (s *NpyEmbeddingStore) Rows() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &domain.StorageReadError{Path: s.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, &domain.StorageReadError{Path: s.path, Err: err}
	}
	h, err := readNpyHeader(bufio.NewReader(f))
	if err == nil {
		err = h.checkSize(info.Size())
	}
	if err != nil {
		return 0, &domain.StorageReadError{Path: s.path, Err: err}
	}
	return h.rows, nil
}

func (s *NpyEmbeddingStore) write(m *domain.Matrix) error {
	err := saveFile(s.path, func(w io.Writer) error {
		return writeNpy(w, m)
	})
	if err != nil {
		return fmt.Errorf("failed to write embeddings %s: %w", s.path, err)
	}
	return nil
}

// IsStorageReadError reports whether err is a StorageReadError.
func IsStorageReadError(err error) bool {
	var sre *domain.StorageReadError
	return errors.As(err, &sre)
}
