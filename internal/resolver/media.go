package resolver

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/user/tgsearch/internal/metrics"
	"github.com/user/tgsearch/internal/types"
)

// maxMediaDownloads bounds the parallel downloads for one message.
const maxMediaDownloads = 4

// MediaResolver fills the bytes and MIME type of every media item, from the
// cache when possible and otherwise by downloading through the client.
type MediaResolver struct {
	downloader types.MediaDownloader
	cache      types.MediaCache
	logger     *slog.Logger
}

// NewMediaResolver builds the stage. cache may be nil.
func NewMediaResolver(downloader types.MediaDownloader, cache types.MediaCache, logger *slog.Logger) *MediaResolver {
	return &MediaResolver{
		downloader: downloader,
		cache:      cache,
		logger:     logger.With("component", "resolver.media"),
	}
}

func (r *MediaResolver) Name() string { return "media" }

// Resolve handles one message at a time; the items of a message are
// resolved concurrently.
func (r *MediaResolver) Resolve(ctx context.Context, msgs iter.Seq[*types.Message]) iter.Seq[*types.Message] {
	return func(yield func(*types.Message) bool) {
		for m := range msgs {
			if m.HasMedia() {
				r.resolveMessage(ctx, m)
			}
			if !yield(m) {
				return
			}
		}
	}
}

func (r *MediaResolver) resolveMessage(ctx context.Context, m *types.Message) {
	resolved := make([]types.Media, len(m.Media))
	copy(resolved, m.Media)

	var g errgroup.Group
	g.SetLimit(maxMediaDownloads)
	for i := range resolved {
		g.Go(func() error {
			start := time.Now()
			item, err := r.resolveItem(ctx, resolved[i])
			if err != nil {
				metrics.RecordResolverItem(r.Name(), "failed", time.Since(start))
				r.logger.Error("failed to resolve media", "message", m.UUID, "platform_id", resolved[i].PlatformID, "error", err)
				return nil
			}
			metrics.RecordResolverItem(r.Name(), "ok", time.Since(start))
			resolved[i] = item
			return nil
		})
	}
	g.Wait()
	m.Media = resolved
}

func (r *MediaResolver) resolveItem(ctx context.Context, item types.Media) (types.Media, error) {
	if r.cache != nil {
		data, ok, err := r.cache.Lookup(ctx, item.Kind, item.PlatformID)
		if err != nil {
			r.logger.Warn("media cache lookup failed", "platform_id", item.PlatformID, "error", err)
		} else if ok {
			item.Bytes = data
			item.MimeType = mimetype.Detect(data).String()
			return item, nil
		}
	}

	data, err := r.downloader.DownloadMedia(ctx, &item)
	if err != nil {
		return item, err
	}
	item.Bytes = data
	item.MimeType = mimetype.Detect(data).String()

	if r.cache != nil {
		if err := r.cache.Store(ctx, item.Kind, item.PlatformID, data); err != nil {
			r.logger.Warn("media cache store failed", "platform_id", item.PlatformID, "error", err)
		}
	}
	return item, nil
}
