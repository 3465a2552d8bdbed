package port

import (
	"context"

	"agrirec/internal/domain"
)

// Embedder maps free text to fixed-dimension vectors.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// EmbeddingStore persists the embedding matrix, one row per item.
type EmbeddingStore interface {
	// Load reads the whole matrix. A missing file yields an empty matrix.
	Load() (*domain.Matrix, error)

	// Append stacks rows onto the stored matrix.
	Append(vectors ...[]float32) error

	// Truncate keeps only the first rows rows.
	Truncate(rows int) error

	// Replace overwrites the stored matrix.
	Replace(m *domain.Matrix) error

	// Rows returns the stored row count without loading the payload.
	Rows() (int, error)
}

// MetadataTable persists item rows in canonical column order.
type MetadataTable interface {
	// Load reads all rows and recomputes derived fields.
	Load() ([]domain.Item, error)

	// Append writes rows at the end of the table.
	Append(items ...domain.Item) error

	// Size returns the current byte size, used as a rollback point.
	Size() (int64, error)

	// Truncate cuts the table back to a previous byte size.
	Truncate(size int64) error

	// Rows returns the stored row count.
	Rows() (int, error)
}
