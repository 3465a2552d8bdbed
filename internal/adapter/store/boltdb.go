package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"agrirec/internal/port"
	"go.etcd.io/bbolt"
)

var (
	bucketPending = []byte("pending")
	bucketIDs     = []byte("ids")
	bucketStats   = []byte("stats")
	keyCounts     = []byte("corpus_counts")
)

// BoltJournal is the ingestion write-ahead log. It also keeps an index of
// committed ids and the schema info of the data directory.
type BoltJournal struct {
	db *bbolt.DB
}

var _ port.Journal = (*BoltJournal)(nil)

// NewBoltJournal opens (or creates) the journal database at path.
func NewBoltJournal(path string) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPending, bucketIDs, bucketStats} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltJournal{db: db}, nil
}

func (j *BoltJournal) DB() *bbolt.DB {
	return j.db
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (j *BoltJournal) Begin(entry port.JournalEntry) (uint64, error) {
	var seq uint64
	err := j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPending)
		var err error
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		entry.Seq = seq
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write journal entry: %w", err)
	}
	return seq, nil
}

func (j *BoltJournal) Commit(seq uint64) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(bucketPending)
		data := pending.Get(seqKey(seq))
		if data == nil {
			return fmt.Errorf("journal entry not found: %d", seq)
		}
		var entry port.JournalEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}

		ids := tx.Bucket(bucketIDs)
		for i, id := range entry.IDs {
			if err := addRow(ids, id, entry.PrevRows+i); err != nil {
				return err
			}
		}
		// Recovery may commit entries newest first; keep the highest count.
		var current int
		if data := tx.Bucket(bucketStats).Get(keyCounts); data != nil {
			if err := json.Unmarshal(data, &current); err != nil {
				return err
			}
		}
		if rows := entry.PrevRows + len(entry.IDs); rows > current {
			if err := putCounts(tx, rows); err != nil {
				return err
			}
		}
		return pending.Delete(seqKey(seq))
	})
}

func (j *BoltJournal) Abort(seq uint64) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Delete(seqKey(seq))
	})
}

func (j *BoltJournal) Pending() ([]port.JournalEntry, error) {
	var entries []port.JournalEntry
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var entry port.JournalEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt journal entry %x: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

func (j *BoltJournal) HasID(id string) (bool, error) {
	var found bool
	err := j.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketIDs).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// RowsForID returns every row index holding id.
func (j *BoltJournal) RowsForID(id string) ([]int, error) {
	var rows []int
	err := j.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIDs).Get([]byte(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &rows)
	})
	return rows, err
}

func (j *BoltJournal) ReindexIDs(ids []string) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketIDs); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketIDs)
		if err != nil {
			return err
		}

		rows := make(map[string][]int, len(ids))
		for i, id := range ids {
			rows[id] = append(rows[id], i)
		}
		for id, r := range rows {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return putCounts(tx, len(ids))
	})
}

// CommittedRows returns the row count recorded by the last commit.
func (j *BoltJournal) CommittedRows() (int, error) {
	var n int
	err := j.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStats).Get(keyCounts)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &n)
	})
	return n, err
}

func (j *BoltJournal) Close() error {
	return j.db.Close()
}

func addRow(b *bbolt.Bucket, id string, row int) error {
	var rows []int
	if existing := b.Get([]byte(id)); existing != nil {
		if err := json.Unmarshal(existing, &rows); err != nil {
			return err
		}
	}
	rows = append(rows, row)
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

func putCounts(tx *bbolt.Tx, rows int) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketStats).Put(keyCounts, data)
}
