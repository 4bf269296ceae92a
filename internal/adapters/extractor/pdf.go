package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/adapters/httperr"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// PDFExtractor extracts PDF text through the external parse service.
type PDFExtractor struct {
	serviceURL string
	client     *http.Client
	chunker    Chunker
}

// NewPDFExtractor creates a PDF extractor that calls the parse service.
func NewPDFExtractor(serviceURL string, timeout time.Duration, chunker Chunker) *PDFExtractor {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PDFExtractor{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client:     &http.Client{Timeout: timeout},
		chunker:    chunker,
	}
}

// parseResponse is the parse service response format.
// PageTexts is preferred; older services only send Text with form feeds between pages.
type parseResponse struct {
	Text      string   `json:"text"`
	Pages     int      `json:"pages"`
	PageTexts []string `json:"page_texts,omitempty"`
	Library   string   `json:"library,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Extract sends the PDF bytes to the service and chunks the returned pages.
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]entities.Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	pages, err := e.parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", path, err)
	}
	for i := range pages {
		pages[i] = cleanText(pages[i])
	}
	return e.chunker.Passages(pages), nil
}

func (e *PDFExtractor) parse(ctx context.Context, data []byte) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling PDF service: %w", err)
	}
	defer resp.Body.Close()

	if err := httperr.Check(resp); err != nil {
		return nil, fmt.Errorf("PDF service: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("PDF parse error: %s", result.Error)
	}

	logging.Debugf("PDF service parsed %d pages (library %q)", result.Pages, result.Library)
	if len(result.PageTexts) > 0 {
		return result.PageTexts, nil
	}
	return strings.Split(result.Text, pageBreak), nil
}

// SupportedExtensions returns file extensions.
func (e *PDFExtractor) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Healthy checks if the parse service is running.
func (e *PDFExtractor) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
