package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/types"
)

// DialogStore persists the chat list.
type DialogStore struct {
	gw *db.Gateway
}

func NewDialogStore(gw *db.Gateway) *DialogStore {
	return &DialogStore{gw: gw}
}

// Record upserts dialogs keyed by chat id.
func (s *DialogStore) Record(ctx context.Context, dialogs []*types.Dialog) error {
	if len(dialogs) == 0 {
		return nil
	}
	now := types.NowMillis()

	var (
		rows []string
		args []any
	)
	for _, d := range dialogs {
		n := len(args)
		rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		args = append(args, d.ID, d.Name, d.Type, d.MessageCount, d.LastMessageAt, now, now)
	}
	query := `INSERT INTO chats (id, name, type, message_count, last_message_at, created_at, updated_at)
		VALUES ` + strings.Join(rows, ", ") + `
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			message_count = excluded.message_count,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`

	_, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) (sql.Result, error) {
		return ex.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return fmt.Errorf("record dialogs: %w", err)
	}
	return nil
}

// Fetch returns all dialogs, most recently active first.
func (s *DialogStore) Fetch(ctx context.Context) ([]*types.Dialog, error) {
	dialogs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Dialog, error) {
		rows, err := ex.QueryContext(ctx, `SELECT id, name, type, message_count, last_message_at
			FROM chats ORDER BY last_message_at DESC, id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []*types.Dialog
		for rows.Next() {
			var d types.Dialog
			if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.MessageCount, &d.LastMessageAt); err != nil {
				return nil, err
			}
			out = append(out, &d)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch dialogs: %w", err)
	}
	return dialogs, nil
}
