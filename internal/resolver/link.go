package resolver

import (
	"context"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/user/tgsearch/internal/metrics"
	"github.com/user/tgsearch/internal/types"
)

var linkPattern = regexp.MustCompile(`https?://\S+`)

// Scraper returns the extracted text behind a link.
type Scraper interface {
	Scrape(ctx context.Context, link string) (string, error)
}

// LinkResolver scrapes the links found in message content and records one
// document per message from the links that could be fetched.
type LinkResolver struct {
	scraper   Scraper
	recorder  types.DocumentRecorder
	tokenizer types.Tokenizer
	embedder  types.Embedder
	logger    *slog.Logger
}

// NewLinkResolver builds the stage. tokenizer and embedder are optional.
func NewLinkResolver(scraper Scraper, recorder types.DocumentRecorder, tokenizer types.Tokenizer, embedder types.Embedder, logger *slog.Logger) *LinkResolver {
	return &LinkResolver{
		scraper:   scraper,
		recorder:  recorder,
		tokenizer: tokenizer,
		embedder:  embedder,
		logger:    logger.With("component", "resolver.link"),
	}
}

func (r *LinkResolver) Name() string { return "link" }

func (r *LinkResolver) Resolve(ctx context.Context, msgs iter.Seq[*types.Message]) iter.Seq[*types.Message] {
	return func(yield func(*types.Message) bool) {
		for m := range msgs {
			r.resolveMessage(ctx, m)
			if !yield(m) {
				return
			}
		}
	}
}

func (r *LinkResolver) resolveMessage(ctx context.Context, m *types.Message) {
	links := linkPattern.FindAllString(m.Content, -1)
	if len(links) == 0 {
		return
	}

	var parts []string
	for _, link := range links {
		start := time.Now()
		text, err := r.scraper.Scrape(ctx, link)
		if err != nil {
			metrics.RecordResolverItem(r.Name(), "failed", time.Since(start))
			r.logger.Error("failed to scrape link", "link", link, "message", m.UUID, "error", err)
			continue
		}
		metrics.RecordResolverItem(r.Name(), "ok", time.Since(start))
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return
	}

	text := strings.Join(parts, "\n\n")
	doc := &types.Document{
		MessageID:        m.UUID,
		RawContent:       text,
		ProcessedContent: text,
		Summary:          text,
	}
	if r.tokenizer != nil {
		doc.Tokens = r.tokenizer.Tokenize(text)
	}
	if r.embedder != nil {
		vecs, err := r.embedder.Embed(ctx, []string{text})
		if err != nil {
			r.logger.Warn("failed to embed document", "message", m.UUID, "error", err)
		} else if len(vecs) == 1 {
			doc.SetVector(vecs[0])
		}
	}

	if err := r.recorder.Record(ctx, []*types.Document{doc}); err != nil {
		r.logger.Error("failed to record document", "message", m.UUID, "error", err)
		return
	}
	r.logger.Debug("recorded link document", "message", m.UUID, "links", len(parts))
}
