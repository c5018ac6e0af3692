package citation

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/aktagon/history-writer/internal/document"
)

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// TitleHandler extracts a human readable title from a fetched page.
type TitleHandler interface {
	CanHandle(url string, resp *http.Response) bool
	Title(url string, resp *http.Response) (string, error)
}

// PDFHandler names PDF documents after their file name.
type PDFHandler struct{}

func (h *PDFHandler) CanHandle(url string, resp *http.Response) bool {
	if strings.HasSuffix(strings.ToLower(url), ".pdf") {
		return true
	}
	return strings.Contains(resp.Header.Get("Content-Type"), "application/pdf")
}

func (h *PDFHandler) Title(rawURL string, resp *http.Response) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", nil
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.TrimSpace(name), nil
}

// HTMLHandler converts the page to Markdown and takes its first top-level
// heading. It accepts anything, so it goes last.
type HTMLHandler struct {
	converter *md.Converter
	limit     int64
}

// NewHTMLHandler reads at most limit bytes of each page.
func NewHTMLHandler(limit int64) *HTMLHandler {
	return &HTMLHandler{converter: md.NewConverter("", true, nil), limit: limit}
}

func (h *HTMLHandler) CanHandle(url string, resp *http.Response) bool {
	return true
}

func (h *HTMLHandler) Title(url string, resp *http.Response) (string, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, h.limit))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	markdown, err := h.converter.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}

	return document.FirstHeading(markdown), nil
}
