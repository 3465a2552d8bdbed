package fs

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"agrirec/internal/domain"
)

// ReadPayloads decodes item payloads from a .json (object or array), .jsonl
// or .csv file. Unknown fields and columns are ignored.
func ReadPayloads(path string) ([]domain.ItemPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSON(f)
	case ".jsonl", ".ndjson":
		return decodeJSONLines(f)
	case ".csv":
		return decodeCSV(f)
	default:
		return nil, fmt.Errorf("unsupported payload file: %s", path)
	}
}

// DecodePayloads reads a JSON object or array, e.g. from stdin.
func DecodePayloads(r io.Reader) ([]domain.ItemPayload, error) {
	return decodeJSON(r)
}

func decodeJSON(r io.Reader) ([]domain.ItemPayload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var payloads []domain.ItemPayload
		if err := json.Unmarshal(data, &payloads); err != nil {
			return nil, fmt.Errorf("failed to decode payload array: %w", err)
		}
		return payloads, nil
	}

	var p domain.ItemPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return []domain.ItemPayload{p}, nil
}

func decodeJSONLines(r io.Reader) ([]domain.ItemPayload, error) {
	var payloads []domain.ItemPayload

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var p domain.ItemPayload
		if err := json.Unmarshal(text, &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		payloads = append(payloads, p)
	}
	return payloads, scanner.Err()
}

func decodeCSV(r io.Reader) ([]domain.ItemPayload, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF"))] = i
	}
	get := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var payloads []domain.ItemPayload
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return payloads, nil
		}
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, domain.ItemPayload{
			ID:           get(rec, "id"),
			Title:        get(rec, "title"),
			Content:      get(rec, "content"),
			Latitude:     optionalFloat(get(rec, "latitude")),
			Longitude:    optionalFloat(get(rec, "longitude")),
			Address:      get(rec, "address"),
			CategoryName: get(rec, "categoryName"),
			ProductName:  get(rec, "productName"),
			Price:        get(rec, "price"),
			Quantity:     get(rec, "quantity"),
		})
	}
}

func optionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
