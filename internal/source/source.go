// Package source fetches the raw input document for a load.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// maxDocumentBytes bounds a single fetched document.
var maxDocumentBytes int64 = 64 << 20

// ErrTooLarge is returned when a document exceeds maxDocumentBytes.
var ErrTooLarge = errors.New("document too large")

// readDocument reads r up to maxDocumentBytes and fails past the limit.
func readDocument(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(b)) > maxDocumentBytes {
		return "", fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxDocumentBytes)
	}
	return string(b), nil
}

// Source yields one delimited OHLC document per Fetch.
type Source interface {
	// Name identifies the source in logs and the journal.
	Name() string

	// Fetch returns the whole document.
	Fetch(ctx context.Context) (string, error)
}

// File reads a document from disk.
type File struct {
	Path string
}

func (f File) Name() string { return "file:" + f.Path }

func (f File) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	doc, err := readDocument(fh)
	if err != nil {
		return "", fmt.Errorf("file source %s: %w", f.Path, err)
	}
	return doc, nil
}

// HTTP performs a single GET per fetch. Non-2xx responses are failures.
type HTTP struct {
	URL    string
	Client *http.Client
}

// NewHTTP returns an HTTP source with a 15s-timeout client.
func NewHTTP(url string) *HTTP {
	return &HTTP{URL: url, Client: &http.Client{Timeout: 15 * time.Second}}
}

func (h *HTTP) Name() string { return h.URL }

func (h *HTTP) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return "", fmt.Errorf("http source: create request: %w", err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http source: get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http source: unexpected status %d", resp.StatusCode)
	}
	doc, err := readDocument(resp.Body)
	if err != nil {
		return "", fmt.Errorf("http source: read body: %w", err)
	}
	return doc, nil
}

// Text serves a fixed in-memory document.
type Text struct {
	Label string
	Body  string
}

func (t Text) Name() string {
	if t.Label == "" {
		return "inline"
	}
	return t.Label
}

func (t Text) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.Body, nil
}

// Func adapts a function to a Source.
type Func struct {
	Label string
	Fn    func(ctx context.Context) (string, error)
}

func (f Func) Name() string                              { return f.Label }
func (f Func) Fetch(ctx context.Context) (string, error) { return f.Fn(ctx) }
