package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGateway(t *testing.T) *db.Gateway {
	t.Helper()
	gw := db.NewGateway(&db.SQLite{Path: ":memory:"}, testLogger())
	require.NoError(t, gw.Init(context.Background()))
	t.Cleanup(func() { gw.Close() })
	return gw
}

// oneHot returns a vector of the given dimension with a single 1 at i.
func oneHot(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func seedMessages(t *testing.T, gw *db.Gateway, n int) []*types.Message {
	t.Helper()
	msgs := make([]*types.Message, n)
	for i := range msgs {
		msgs[i] = &types.Message{
			ChatID:            "chat-1",
			PlatformMessageID: fmt.Sprintf("%d", i+1),
			Content:           fmt.Sprintf("message %d", i+1),
			PlatformTimestamp: int64(1000 * (i + 1)),
		}
	}
	require.NoError(t, NewMessageStore(gw, nil, testLogger()).Record(context.Background(), msgs))
	return msgs
}

func countRows(t *testing.T, gw *db.Gateway, table string) int {
	t.Helper()
	n, err := db.WithDB(context.Background(), gw, func(ctx context.Context, ex db.Exec) (int, error) {
		var n int
		err := ex.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
		return n, err
	})
	require.NoError(t, err)
	return n
}

type splitTokenizer struct{}

func (splitTokenizer) Tokenize(text string) []string {
	var out []string
	for _, f := range []rune(text) {
		out = append(out, string(f))
	}
	return out
}
