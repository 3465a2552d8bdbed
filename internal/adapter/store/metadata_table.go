package store

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"agrirec/internal/domain"
)

const utf8BOM = "\uFEFF"

// CSVMetadataTable keeps item rows in a quote-all UTF-8 CSV file with the
// canonical header. Derived columns are written for external readers but
// are recomputed from the raw display strings on load.
type CSVMetadataTable struct {
	path string
	mu   sync.Mutex
}

// NewCSVMetadataTable creates a table backed by path.
func NewCSVMetadataTable(path string) *CSVMetadataTable {
	return &CSVMetadataTable{path: path}
}

// Path returns the backing file.
func (t *CSVMetadataTable) Path() string {
	return t.path
}

// Load reads every row. A missing file is an empty table.
func (t *CSVMetadataTable) Load() ([]domain.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var items []domain.Item
	err := t.scan(func(rec record) error {
		items = append(items, domain.BuildItem(rec.raw()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Rows counts the stored rows.
func (t *CSVMetadataTable) Rows() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	err := t.scan(func(record) error {
		n++
		return nil
	})
	return n, err
}

// Append writes items at the end of the file, writing the header first when
// the file is new or empty.
func (t *CSVMetadataTable) Append(items ...domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open metadata %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat metadata %s: %w", t.path, err)
	}

	w := bufio.NewWriter(f)
	if info.Size() == 0 {
		if err := writeQuotedRow(w, domain.Columns); err != nil {
			return err
		}
	}
	for _, it := range items {
		if err := writeQuotedRow(w, itemFields(it)); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to append metadata %s: %w", t.path, err)
	}
	return f.Sync()
}

// Size returns the current file size; 0 when the file does not exist.
func (t *CSVMetadataTable) Size() (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// Truncate cuts the file back to size bytes.
func (t *CSVMetadataTable) Truncate(size int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Truncate(t.path, size); err != nil {
		if os.IsNotExist(err) && size == 0 {
			return nil
		}
		return fmt.Errorf("failed to truncate metadata %s: %w", t.path, err)
	}
	return nil
}

// Replace rewrites the whole table atomically.
func (t *CSVMetadataTable) Replace(items []domain.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return saveFile(t.path, func(w io.Writer) error {
		if err := writeQuotedRow(w, domain.Columns); err != nil {
			return err
		}
		for _, it := range items {
			if err := writeQuotedRow(w, itemFields(it)); err != nil {
				return err
			}
		}
		return nil
	})
}

// record is one CSV row addressed by header name.
type record struct {
	index  map[string]int
	fields []string
}

func (r record) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

func (r record) raw() domain.RawItem {
	return domain.RawItem{
		ID:           r.get("id"),
		CategoryName: r.get("categoryName"),
		ProductName:  r.get("productName"),
		Price:        r.get("price"),
		Quantity:     r.get("quantity"),
		Latitude:     domain.ParseCoordinate(r.get("latitude")),
		Longitude:    domain.ParseCoordinate(r.get("longitude")),
		Address:      r.get("address"),
	}
}

func (t *CSVMetadataTable) scan(fn func(record) error) error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &domain.StorageReadError{Path: t.path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &domain.StorageReadError{Path: t.path, Err: err}
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, utf8BOM)
		}
		index[strings.TrimSpace(col)] = i
	}
	if _, ok := index["id"]; !ok {
		return &domain.StorageReadError{Path: t.path, Err: errors.New("missing id column")}
	}

	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &domain.StorageReadError{Path: t.path, Err: err}
		}
		if err := fn(record{index: index, fields: fields}); err != nil {
			return err
		}
	}
}

func itemFields(it domain.Item) []string {
	return []string{
		it.ID,
		it.CategoryName,
		it.ProductName,
		it.Price,
		it.Quantity,
		domain.FormatFloat(it.Latitude),
		domain.FormatFloat(it.Longitude),
		it.Address,
		it.Province,
		domain.FormatFloat(it.PriceNum),
		domain.FormatFloat(it.QuantityNum),
		it.SemanticText,
	}
}

// writeQuotedRow quotes every field. encoding/csv only quotes when needed.
func writeQuotedRow(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
