package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkerGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.json"), "{}")
	writeFile(t, filepath.Join(root, "nested", "b.jsonl"), "")
	writeFile(t, filepath.Join(root, "nested", "notes.txt"), "")
	writeFile(t, filepath.Join(root, "skip", "c.csv"), "")

	files, err := NewWalker(nil, []string{"skip/**"}).Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		names = append(names, filepath.ToSlash(rel))
	}
	if strings.Join(names, ",") != "a.json,nested/b.jsonl" {
		t.Errorf("unexpected files %v", names)
	}
}

func TestWalkerSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	writeFile(t, path, "")

	files, err := NewWalker(nil, nil).Walk(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != path {
		t.Errorf("expected the file itself, got %+v", files)
	}
}

func TestReadPayloadsJSON(t *testing.T) {
	dir := t.TempDir()
	single := filepath.Join(dir, "one.json")
	writeFile(t, single, `{"id":"p1","productName":"Sầu riêng","latitude":10.5,"extra":true}`)
	array := filepath.Join(dir, "many.json")
	writeFile(t, array, `[{"id":"p1"},{"id":"p2","title":"ignored"}]`)

	got, err := ReadPayloads(single)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ProductName != "Sầu riêng" || got[0].Latitude == nil || *got[0].Latitude != 10.5 {
		t.Errorf("unexpected payload %+v", got)
	}
	if got[0].Longitude != nil {
		t.Error("absent longitude should be nil")
	}

	got, err = ReadPayloads(array)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].ID != "p2" {
		t.Errorf("unexpected payloads %+v", got)
	}
}

func TestReadPayloadsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.jsonl")
	writeFile(t, path, "{\"id\":\"a\"}\n\n{\"id\":\"b\"}\n")

	got, err := ReadPayloads(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("unexpected payloads %+v", got)
	}

	writeFile(t, path, "{\"id\":\"a\"}\n{broken\n")
	if _, err := ReadPayloads(path); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 error, got %v", err)
	}
}

func TestReadPayloadsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	writeFile(t, path, "productName,id,latitude,longitude,price\n"+
		"\"Xoài, loại 1\",m1,10.3,,\"60.000 đ\"\n")

	got, err := ReadPayloads(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(got))
	}
	p := got[0]
	if p.ID != "m1" || p.ProductName != "Xoài, loại 1" || p.Price != "60.000 đ" {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.Latitude == nil || *p.Latitude != 10.3 || p.Longitude != nil {
		t.Errorf("unexpected coordinates %v %v", p.Latitude, p.Longitude)
	}
}

func TestReadPayloadsUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.xml")
	writeFile(t, path, "<items/>")
	if _, err := ReadPayloads(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
