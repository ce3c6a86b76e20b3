package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/user/tgsearch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScraper struct {
	mu    sync.Mutex
	calls []string
}

// Scrape fails for any link containing "bad".
func (s *fakeScraper) Scrape(_ context.Context, link string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, link)
	s.mu.Unlock()
	if strings.Contains(link, "bad") {
		return "", errors.New("status 500")
	}
	return "content of " + link, nil
}

type recorder struct {
	mu   sync.Mutex
	docs []*types.Document
	err  error
}

func (r *recorder) Record(_ context.Context, docs []*types.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.docs = append(r.docs, docs...)
	return nil
}

func (r *recorder) byMessage() map[types.MessageID]*types.Document {
	out := make(map[types.MessageID]*types.Document)
	for _, d := range r.docs {
		out[d.MessageID] = d
	}
	return out
}

type fakeEmbedder struct {
	dim   int
	err   error
	calls [][]string
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, e.dim)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int { return e.dim }

type wordTokenizer struct{}

func (wordTokenizer) Tokenize(text string) []string { return strings.Fields(text) }

type fakeDownloader struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls []string
}

func (d *fakeDownloader) DownloadMedia(_ context.Context, m *types.Media) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, m.PlatformID)
	b, ok := d.data[m.PlatformID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return b, nil
}

type memoryCache struct {
	mu     sync.Mutex
	items  map[string][]byte
	stored []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Lookup(_ context.Context, kind types.MediaKind, id string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.items[string(kind)+"/"+id]
	return b, ok, nil
}

func (c *memoryCache) Store(_ context.Context, kind types.MediaKind, id string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[string(kind)+"/"+id] = data
	c.stored = append(c.stored, id)
	return nil
}
