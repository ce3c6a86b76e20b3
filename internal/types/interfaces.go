// internal/types/interfaces.go
package types

import "context"

// DocumentRecorder persists documents derived from messages.
type DocumentRecorder interface {
	Record(ctx context.Context, docs []*Document) error
}

// MediaCache looks up previously downloaded media payloads by platform id.
type MediaCache interface {
	Lookup(ctx context.Context, kind MediaKind, platformID string) ([]byte, bool, error)
	Store(ctx context.Context, kind MediaKind, platformID string, data []byte) error
}

// MediaDownloader fetches the raw bytes behind a protocol media reference.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, media *Media) ([]byte, error)
}

// Embedder turns texts into vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Tokenizer splits text into search tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}
