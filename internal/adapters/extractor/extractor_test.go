package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testChunker() Chunker {
	return Chunker{Size: 100, Overlap: 10}
}

func TestTextExtractor_PagesSplitOnFormFeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	os.WriteFile(path, []byte("page one\fpage two"), 0644)

	passages, err := NewTextExtractor(testChunker()).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %+v", passages)
	}
	if passages[0].Text != "page one" || passages[1].Page != 2 || passages[1].Text != "page two" {
		t.Errorf("unexpected passages: %+v", passages)
	}
}

func TestTextExtractor_NonexistentFile(t *testing.T) {
	_, err := NewTextExtractor(testChunker()).Extract(context.Background(), "/nonexistent/file.txt")
	if err == nil {
		t.Error("should error on nonexistent file")
	}
}

func TestPDFExtractor_PageTexts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/parse" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pages":      2,
			"page_texts": []string{"Hello from PDF", "Second\x00 page"},
		})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	os.WriteFile(path, []byte("%PDF-fake"), 0644)

	passages, err := NewPDFExtractor(server.URL, 0, testChunker()).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(passages) != 2 || passages[1].Page != 2 || passages[1].Text != "Second page" {
		t.Errorf("unexpected passages: %+v", passages)
	}
}

func TestPDFExtractor_TextFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "one\ftwo\fthree", "pages": 3})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	os.WriteFile(path, []byte("%PDF-fake"), 0644)

	passages, err := NewPDFExtractor(server.URL, 0, testChunker()).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(passages) != 3 || passages[2].Page != 3 {
		t.Errorf("unexpected passages: %+v", passages)
	}
}

func TestPDFExtractor_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "parsing failed",
			"text":  "",
		})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "bad.pdf")
	os.WriteFile(path, []byte("bad"), 0644)

	if _, err := NewPDFExtractor(server.URL, 0, testChunker()).Extract(context.Background(), path); err == nil {
		t.Error("should error on parse failure")
	}
}

func TestPDFExtractor_Healthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if !NewPDFExtractor(server.URL, 0, testChunker()).Healthy(context.Background()) {
		t.Error("service should be healthy")
	}
	if NewPDFExtractor("http://127.0.0.1:1", 0, testChunker()).Healthy(context.Background()) {
		t.Error("unreachable service should not be healthy")
	}
}

func TestMulti_DispatchByExtension(t *testing.T) {
	dir := t.TempDir()
	txtPath := filepath.Join(dir, "test.txt")
	mdPath := filepath.Join(dir, "TEST.MD")
	os.WriteFile(txtPath, []byte("txt content"), 0644)
	os.WriteFile(mdPath, []byte("# Markdown"), 0644)

	m := NewMulti(NewTextExtractor(testChunker()), NewPDFExtractor("", 0, testChunker()))

	txt, err := m.Extract(context.Background(), txtPath)
	if err != nil || len(txt) != 1 || txt[0].Text != "txt content" {
		t.Errorf("txt not extracted correctly: %+v, %v", txt, err)
	}
	md, err := m.Extract(context.Background(), mdPath)
	if err != nil || len(md) != 1 || md[0].Text != "# Markdown" {
		t.Errorf("md not extracted correctly: %+v, %v", md, err)
	}
}

func TestMulti_Unsupported(t *testing.T) {
	m := NewMulti(NewTextExtractor(testChunker()))
	_, err := m.Extract(context.Background(), "/tmp/image.png")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if m.Supports("a.png") || !m.Supports("a.TXT") {
		t.Error("Supports disagrees with registered extensions")
	}
}

func TestMulti_AllExtensions(t *testing.T) {
	m := NewMulti(NewTextExtractor(testChunker()), NewPDFExtractor("", 0, testChunker()))
	exts := m.SupportedExtensions()
	if len(exts) != 4 || exts[0] != ".markdown" {
		t.Errorf("unexpected extensions: %v", exts)
	}
}
