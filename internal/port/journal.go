package port

// JournalEntry records an append in flight so that a crash between the
// metadata and embedding writes can be repaired.
type JournalEntry struct {
	Seq           uint64   `json:"seq"`
	IDs           []string `json:"ids"`
	PrevRows      int      `json:"prev_rows"`
	PrevMetaSize  int64    `json:"prev_meta_size"`
	EmbeddingRows int      `json:"embedding_rows"`
}

// Journal is the write-ahead log of the ingestion pipeline.
type Journal interface {
	// Begin persists an entry and assigns its sequence number.
	Begin(entry JournalEntry) (uint64, error)

	// Commit removes an entry and indexes its ids at their row positions.
	Commit(seq uint64) error

	// Abort removes an entry without indexing.
	Abort(seq uint64) error

	// Pending lists uncommitted entries in sequence order.
	Pending() ([]JournalEntry, error)

	// HasID reports whether an id has been committed before.
	HasID(id string) (bool, error)

	// ReindexIDs rebuilds the id index from the metadata rows.
	ReindexIDs(ids []string) error

	Close() error
}
