package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/types"
)

// MediaCache keeps downloaded photo and sticker payloads by platform id.
// Other media kinds are never cached.
type MediaCache struct {
	gw *db.Gateway
}

func NewMediaCache(gw *db.Gateway) *MediaCache {
	return &MediaCache{gw: gw}
}

func mediaTable(kind types.MediaKind) string {
	switch kind {
	case types.MediaPhoto:
		return "photos"
	case types.MediaSticker:
		return "stickers"
	}
	return ""
}

// Lookup returns the cached payload and whether it was found.
func (c *MediaCache) Lookup(ctx context.Context, kind types.MediaKind, platformID string) ([]byte, bool, error) {
	table := mediaTable(kind)
	if table == "" || platformID == "" {
		return nil, false, nil
	}

	data, err := db.WithDB(ctx, c.gw, func(ctx context.Context, ex db.Exec) ([]byte, error) {
		var data []byte
		err := ex.QueryRowContext(ctx, "SELECT data FROM "+table+" WHERE platform_id = $1", platformID).Scan(&data)
		return data, err
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", kind, err)
	}
	return data, true, nil
}

// Store writes data for platformID, replacing an existing entry.
func (c *MediaCache) Store(ctx context.Context, kind types.MediaKind, platformID string, data []byte) error {
	table := mediaTable(kind)
	if table == "" || platformID == "" {
		return nil
	}

	_, err := db.WithDB(ctx, c.gw, func(ctx context.Context, ex db.Exec) (sql.Result, error) {
		return ex.ExecContext(ctx, `INSERT INTO `+table+` (platform_id, data, created_at) VALUES ($1, $2, $3)
			ON CONFLICT (platform_id) DO UPDATE SET data = excluded.data`,
			platformID, data, types.NowMillis())
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

var _ types.MediaCache = (*MediaCache)(nil)
var _ types.DocumentRecorder = (*DocumentStore)(nil)
