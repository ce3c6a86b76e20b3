package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/types"
)

const messageColumns = `id, chat_id, platform_message_id, from_id, from_name, content,
	media, jieba_tokens, platform_timestamp, created_at, updated_at`

// DefaultContextSize is how many messages a context window takes on each
// side of the target when the caller does not say.
const DefaultContextSize = 20

// Weights of the combined search score.
const (
	similarityWeight    = 0.7
	timeRelevanceWeight = 0.3
)

// MessageStore persists chat messages and serves the message queries of the
// storage service.
type MessageStore struct {
	gw        *db.Gateway
	tokenizer types.Tokenizer
	logger    *slog.Logger
	now       func() time.Time
}

func NewMessageStore(gw *db.Gateway, tokenizer types.Tokenizer, logger *slog.Logger) *MessageStore {
	return &MessageStore{
		gw:        gw,
		tokenizer: tokenizer,
		logger:    logger.With("component", "messages"),
		now:       time.Now,
	}
}

// Record upserts msgs keyed by (platform_message_id, chat_id). After it
// returns, every message's UUID is the id of its stored row, which differs
// from the incoming one when the message was already archived.
func (s *MessageStore) Record(ctx context.Context, msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	type key struct{ platformID, chatID string }
	// One statement may not touch a conflict key twice on Postgres.
	batch := lastByKey(msgs, func(m *types.Message) key { return key{m.PlatformMessageID, m.ChatID} })

	d := s.gw.Dialect()
	now := types.NowMillis()

	var (
		rows []string
		args []any
	)
	for _, m := range batch {
		if m.UUID == "" {
			m.UUID = types.NewMessageID()
		}
		if m.CreatedAt == 0 {
			m.CreatedAt = now
		}
		m.UpdatedAt = now

		media, err := encodeMedia(m.Media)
		if err != nil {
			return err
		}
		tokens, err := encodeStrings(m.Tokens)
		if err != nil {
			return err
		}
		var v1536, v1024, v768 any
		switch len(m.Embedding) {
		case 1536:
			v1536 = db.EncodeVector(m.Embedding)
		case 1024:
			v1024 = db.EncodeVector(m.Embedding)
		case 768:
			v768 = db.EncodeVector(m.Embedding)
		}

		n := len(args)
		rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, %s, %s, %s, %s, %s, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, d.JSONParam(n+7), d.JSONParam(n+8),
			d.VectorParam(n+9), d.VectorParam(n+10), d.VectorParam(n+11), n+12, n+13, n+14))
		args = append(args,
			string(m.UUID), m.ChatID, m.PlatformMessageID, m.FromID, m.FromName, m.Content,
			media, tokens, v1536, v1024, v768,
			m.PlatformTimestamp, m.CreatedAt, m.UpdatedAt)
	}

	query := `INSERT INTO chat_messages (id, chat_id, platform_message_id, from_id, from_name, content,
			media, jieba_tokens, content_vector_1536, content_vector_1024, content_vector_768,
			platform_timestamp, created_at, updated_at)
		VALUES ` + strings.Join(rows, ", ") + `
		ON CONFLICT (platform_message_id, chat_id) DO UPDATE SET
			from_id = excluded.from_id,
			from_name = excluded.from_name,
			content = excluded.content,
			media = excluded.media,
			jieba_tokens = excluded.jieba_tokens,
			content_vector_1536 = COALESCE(excluded.content_vector_1536, chat_messages.content_vector_1536),
			content_vector_1024 = COALESCE(excluded.content_vector_1024, chat_messages.content_vector_1024),
			content_vector_768 = COALESCE(excluded.content_vector_768, chat_messages.content_vector_768),
			platform_timestamp = excluded.platform_timestamp,
			updated_at = excluded.updated_at
		RETURNING id, platform_message_id, chat_id`

	ids, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) (map[key]string, error) {
		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		ids := make(map[key]string, len(batch))
		for rows.Next() {
			var id string
			var k key
			if err := rows.Scan(&id, &k.platformID, &k.chatID); err != nil {
				return nil, err
			}
			ids[k] = id
		}
		return ids, rows.Err()
	})
	if err != nil {
		return fmt.Errorf("record messages: %w", err)
	}

	for _, m := range msgs {
		if id, ok := ids[key{m.PlatformMessageID, m.ChatID}]; ok {
			m.UUID = types.MessageID(id)
		}
	}
	s.logger.Debug("recorded messages", "count", len(batch))
	return nil
}

// FetchByChat returns the messages of one chat, newest first.
func (s *MessageStore) FetchByChat(ctx context.Context, chatID string, page *types.Pagination) ([]*types.Message, error) {
	p := page.OrDefault()
	query := `SELECT ` + messageColumns + ` FROM chat_messages
		WHERE chat_id = $1 AND deleted_at = 0
		ORDER BY platform_timestamp DESC
		LIMIT $2 OFFSET $3`

	msgs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Message, error) {
		return queryMessages(ctx, ex, query, chatID, p.Limit, p.Offset)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return msgs, nil
}

// Context returns up to before messages preceding the target, the target
// itself and up to after messages following it, in chronological order.
// Negative counts fall back to DefaultContextSize.
func (s *MessageStore) Context(ctx context.Context, chatID, platformMessageID string, before, after int) ([]*types.Message, error) {
	if before < 0 {
		before = DefaultContextSize
	}
	if after < 0 {
		after = DefaultContextSize
	}

	msgs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Message, error) {
		target, err := queryMessages(ctx, ex, `SELECT `+messageColumns+` FROM chat_messages
			WHERE chat_id = $1 AND platform_message_id = $2`, chatID, platformMessageID)
		if err != nil {
			return nil, err
		}
		if len(target) == 0 {
			return nil, fmt.Errorf("message %s in chat %s: %w", platformMessageID, chatID, db.ErrNotFound)
		}
		ts := target[0].PlatformTimestamp

		older, err := queryMessages(ctx, ex, `SELECT `+messageColumns+` FROM chat_messages
			WHERE chat_id = $1 AND platform_timestamp < $2 AND deleted_at = 0
			ORDER BY platform_timestamp DESC
			LIMIT $3`, chatID, ts, before)
		if err != nil {
			return nil, err
		}
		newer, err := queryMessages(ctx, ex, `SELECT `+messageColumns+` FROM chat_messages
			WHERE chat_id = $1 AND platform_timestamp > $2 AND deleted_at = 0
			ORDER BY platform_timestamp ASC
			LIMIT $3`, chatID, ts, after)
		if err != nil {
			return nil, err
		}

		slices.Reverse(older)
		out := append(older, target[0])
		return append(out, newer...), nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch message context: %w", err)
	}
	return msgs, nil
}

// SearchQuery describes a message search. A non-empty Embedding selects
// similarity search over the vector column of matching dimension; otherwise
// Content is matched lexically.
type SearchQuery struct {
	ChatID     string
	Content    string
	Embedding  []float32
	Pagination *types.Pagination
}

// Search returns matching messages ranked by combined score.
func (s *MessageStore) Search(ctx context.Context, q SearchQuery) ([]*types.RetrievalMessage, error) {
	var (
		out []*types.RetrievalMessage
		err error
	)
	if len(q.Embedding) > 0 {
		out, err = s.searchVector(ctx, q)
	} else {
		out, err = s.searchText(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CombinedScore > out[j].CombinedScore })
	return out, nil
}

func (s *MessageStore) searchVector(ctx context.Context, q SearchQuery) ([]*types.RetrievalMessage, error) {
	col := vectorColumn("content_vector", len(q.Embedding))
	if col == "" {
		return nil, fmt.Errorf("unsupported embedding dimension %d", len(q.Embedding))
	}
	p := q.Pagination.OrDefault()
	d := s.gw.Dialect()
	distance := d.CosineDistance(col, 1)

	where := col + " IS NOT NULL AND deleted_at = 0"
	args := []any{db.EncodeVector(q.Embedding), p.Limit, p.Offset}
	if q.ChatID != "" {
		where += " AND chat_id = $4"
		args = append(args, q.ChatID)
	}
	query := `SELECT ` + messageColumns + `, ` + distance + ` AS distance FROM chat_messages
		WHERE ` + where + `
		ORDER BY distance
		LIMIT $2 OFFSET $3`

	return db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.RetrievalMessage, error) {
		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []*types.RetrievalMessage
		for rows.Next() {
			var distance sql.NullFloat64
			m, err := scanMessage(rows, &distance)
			if err != nil {
				return nil, err
			}
			r := &types.RetrievalMessage{Message: *m}
			if distance.Valid {
				r.Similarity = 1 - distance.Float64
			}
			s.score(r)
			out = append(out, r)
		}
		return out, rows.Err()
	})
}

func (s *MessageStore) searchText(ctx context.Context, q SearchQuery) ([]*types.RetrievalMessage, error) {
	content := strings.TrimSpace(q.Content)
	if content == "" {
		return nil, nil
	}
	p := q.Pagination.OrDefault()
	d := s.gw.Dialect()

	tokens, err := encodeStrings(s.queryTokens(content))
	if err != nil {
		return nil, err
	}
	where := "(" + d.Contains("chat_messages.jieba_tokens", 1) + " OR " + d.Like("content", 2) + ") AND deleted_at = 0"
	args := []any{tokens, "%" + content + "%", p.Limit, p.Offset}
	if q.ChatID != "" {
		where += " AND chat_id = $5"
		args = append(args, q.ChatID)
	}
	query := `SELECT ` + messageColumns + ` FROM chat_messages
		WHERE ` + where + `
		ORDER BY platform_timestamp DESC
		LIMIT $3 OFFSET $4`

	msgs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Message, error) {
		return queryMessages(ctx, ex, query, args...)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*types.RetrievalMessage, 0, len(msgs))
	for _, m := range msgs {
		r := &types.RetrievalMessage{Message: *m, Similarity: 1}
		s.score(r)
		out = append(out, r)
	}
	return out, nil
}

// score sets the time relevance, which halves after one day and keeps
// decaying with age, and the weighted combined score.
func (s *MessageStore) score(r *types.RetrievalMessage) {
	ageDays := float64(s.now().UnixMilli()-r.PlatformTimestamp) / float64(24*time.Hour/time.Millisecond)
	r.TimeRelevance = 1 / (1 + math.Max(ageDays, 0))
	r.CombinedScore = similarityWeight*r.Similarity + timeRelevanceWeight*r.TimeRelevance
}

// MissingEmbeddings returns messages with content but no vector of the given
// dimension, oldest first.
func (s *MessageStore) MissingEmbeddings(ctx context.Context, dim, limit int) ([]*types.Message, error) {
	col := vectorColumn("content_vector", dim)
	if col == "" {
		return nil, fmt.Errorf("unsupported embedding dimension %d", dim)
	}
	query := `SELECT ` + messageColumns + ` FROM chat_messages
		WHERE ` + col + ` IS NULL AND content <> '' AND deleted_at = 0
		ORDER BY created_at ASC
		LIMIT $1`

	msgs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Message, error) {
		return queryMessages(ctx, ex, query, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("list messages without embeddings: %w", err)
	}
	return msgs, nil
}

func (s *MessageStore) queryTokens(text string) []string {
	if s.tokenizer != nil {
		if tokens := s.tokenizer.Tokenize(text); len(tokens) > 0 {
			return tokens
		}
	}
	return []string{text}
}

func vectorColumn(prefix string, dim int) string {
	switch dim {
	case 1536, 1024, 768:
		return fmt.Sprintf("%s_%d", prefix, dim)
	}
	return ""
}

func queryMessages(ctx context.Context, ex db.Exec, query string, args ...any) ([]*types.Message, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(rows *sql.Rows, extra ...any) (*types.Message, error) {
	var (
		m             types.Message
		id            string
		media, tokens string
	)
	dest := []any{&id, &m.ChatID, &m.PlatformMessageID, &m.FromID, &m.FromName, &m.Content,
		&media, &tokens, &m.PlatformTimestamp, &m.CreatedAt, &m.UpdatedAt}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.UUID = types.MessageID(id)

	if err := json.Unmarshal([]byte(media), &m.Media); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	var err error
	if m.Tokens, err = decodeStrings(tokens); err != nil {
		return nil, err
	}
	return &m, nil
}

// encodeMedia stores media metadata only; payloads live in the media cache.
func encodeMedia(media []types.Media) (string, error) {
	stripped := make([]types.Media, len(media))
	for i, item := range media {
		item.Bytes = nil
		stripped[i] = item
	}
	b, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("encode media: %w", err)
	}
	return string(b), nil
}
