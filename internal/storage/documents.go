package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/types"
)

const documentColumns = `id, chat_messages_id, tags, raw_content, processed_content,
	processed_content_jieba_tokens, summary, summary_vector_1536, summary_vector_1024,
	summary_vector_768, created_at, updated_at, deleted_at`

// DocumentStore persists and retrieves documents derived from messages.
type DocumentStore struct {
	gw        *db.Gateway
	tokenizer types.Tokenizer
	logger    *slog.Logger
}

// NewDocumentStore returns a store over gw. tokenizer may be nil, in which
// case text queries match on the whole trimmed query.
func NewDocumentStore(gw *db.Gateway, tokenizer types.Tokenizer, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{
		gw:        gw,
		tokenizer: tokenizer,
		logger:    logger.With("component", "documents"),
	}
}

// Record upserts docs in one statement keyed by chat_messages_id. Text
// fields, tokens and tags are overwritten; a NULL incoming vector keeps the
// stored one.
func (s *DocumentStore) Record(ctx context.Context, docs []*types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batch := lastByKey(docs, func(doc *types.Document) types.MessageID { return doc.MessageID })

	d := s.gw.Dialect()
	now := types.NowMillis()

	var (
		rows []string
		args []any
	)
	for _, doc := range batch {
		if doc.ID == "" {
			doc.ID = types.NewDocumentID()
		}
		if doc.CreatedAt == 0 {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now

		tags, err := encodeStrings(doc.Tags)
		if err != nil {
			return err
		}
		tokens, err := encodeStrings(doc.Tokens)
		if err != nil {
			return err
		}

		n := len(args)
		rows = append(rows, fmt.Sprintf("($%d, $%d, %s, $%d, $%d, %s, $%d, %s, %s, %s, $%d, $%d, $%d)",
			n+1, n+2, d.JSONParam(n+3), n+4, n+5, d.JSONParam(n+6), n+7,
			d.VectorParam(n+8), d.VectorParam(n+9), d.VectorParam(n+10), n+11, n+12, n+13))
		args = append(args,
			string(doc.ID), string(doc.MessageID), tags, doc.RawContent, doc.ProcessedContent,
			tokens, doc.Summary,
			db.EncodeVector(doc.Vector1536), db.EncodeVector(doc.Vector1024), db.EncodeVector(doc.Vector768),
			doc.CreatedAt, doc.UpdatedAt, doc.DeletedAt)
	}

	query := `INSERT INTO documents (` + documentColumns + `) VALUES ` + strings.Join(rows, ", ") + `
		ON CONFLICT (chat_messages_id) DO UPDATE SET
			raw_content = excluded.raw_content,
			processed_content = excluded.processed_content,
			processed_content_jieba_tokens = excluded.processed_content_jieba_tokens,
			summary = excluded.summary,
			summary_vector_1536 = COALESCE(excluded.summary_vector_1536, documents.summary_vector_1536),
			summary_vector_1024 = COALESCE(excluded.summary_vector_1024, documents.summary_vector_1024),
			summary_vector_768 = COALESCE(excluded.summary_vector_768, documents.summary_vector_768),
			tags = excluded.tags,
			updated_at = excluded.updated_at`

	_, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) (sql.Result, error) {
		return ex.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return fmt.Errorf("record documents: %w", err)
	}
	s.logger.Debug("recorded documents", "count", len(batch))
	return nil
}

// Fetch returns the documents of one message, newest first.
func (s *DocumentStore) Fetch(ctx context.Context, messageID types.MessageID, page *types.Pagination) ([]*types.Document, error) {
	p := page.OrDefault()
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE chat_messages_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	docs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Document, error) {
		return queryDocuments(ctx, ex, query, string(messageID), p.Limit, p.Offset)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	return docs, nil
}

// RetrievalQuery selects the retrieval paths: Text for token containment,
// Embedding for vector similarity. Either may be empty.
type RetrievalQuery struct {
	Text      string
	Embedding []float32
}

// Retrieve runs the lexical and vector sub-queries independently, each with
// the same limit and offset, and returns lexical rows followed by vector
// rows. Rows matching both paths appear twice.
func (s *DocumentStore) Retrieve(ctx context.Context, q RetrievalQuery, page *types.Pagination) ([]*types.Document, error) {
	p := page.OrDefault()
	d := s.gw.Dialect()
	var out []*types.Document

	if text := strings.TrimSpace(q.Text); text != "" {
		tokens, err := encodeStrings(s.queryTokens(text))
		if err != nil {
			return nil, err
		}
		query := `SELECT ` + documentColumns + ` FROM documents
			WHERE ` + d.Contains("documents.processed_content_jieba_tokens", 1) + `
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`
		docs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Document, error) {
			return queryDocuments(ctx, ex, query, tokens, p.Limit, p.Offset)
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve documents by tokens: %w", err)
		}
		s.logger.Debug("retrieved token documents", "count", len(docs))
		out = append(out, docs...)
	}

	if len(q.Embedding) > 0 {
		query := `SELECT ` + documentColumns + ` FROM documents
			WHERE summary_vector_1536 IS NOT NULL
			ORDER BY ` + d.CosineDistance("summary_vector_1536", 1) + `
			LIMIT $2 OFFSET $3`
		docs, err := db.WithDB(ctx, s.gw, func(ctx context.Context, ex db.Exec) ([]*types.Document, error) {
			return queryDocuments(ctx, ex, query, db.EncodeVector(q.Embedding), p.Limit, p.Offset)
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve documents by vector: %w", err)
		}
		s.logger.Debug("retrieved vector documents", "count", len(docs))
		out = append(out, docs...)
	}

	return out, nil
}

func (s *DocumentStore) queryTokens(text string) []string {
	if s.tokenizer != nil {
		if tokens := s.tokenizer.Tokenize(text); len(tokens) > 0 {
			return tokens
		}
	}
	return []string{text}
}

func queryDocuments(ctx context.Context, ex db.Exec, query string, args ...any) ([]*types.Document, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(rows *sql.Rows) (*types.Document, error) {
	var (
		doc                types.Document
		tags, tokens       string
		id, messageID      string
		v1536, v1024, v768 sql.NullString
	)
	err := rows.Scan(&id, &messageID, &tags, &doc.RawContent, &doc.ProcessedContent,
		&tokens, &doc.Summary, &v1536, &v1024, &v768,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt)
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ID = types.DocumentID(id)
	doc.MessageID = types.MessageID(messageID)

	if doc.Tags, err = decodeStrings(tags); err != nil {
		return nil, err
	}
	if doc.Tokens, err = decodeStrings(tokens); err != nil {
		return nil, err
	}
	if doc.Vector1536, err = db.DecodeVector(v1536); err != nil {
		return nil, err
	}
	if doc.Vector1024, err = db.DecodeVector(v1024); err != nil {
		return nil, err
	}
	if doc.Vector768, err = db.DecodeVector(v768); err != nil {
		return nil, err
	}
	return &doc, nil
}

// lastByKey drops items whose key appears again later in items. The
// survivors keep their relative order.
func lastByKey[T any, K comparable](items []T, key func(T) K) []T {
	last := make(map[K]int, len(items))
	for i, item := range items {
		last[key(item)] = i
	}
	if len(last) == len(items) {
		return items
	}
	out := make([]T, 0, len(last))
	for i, item := range items {
		if last[key(item)] == i {
			out = append(out, item)
		}
	}
	return out
}

func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json array: %w", err)
	}
	return string(b), nil
}

func decodeStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	return out, nil
}
