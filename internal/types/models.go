// internal/types/models.go
package types

import (
	"slices"
	"time"
)

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaSticker  MediaKind = "sticker"
	MediaDocument MediaKind = "document"
	MediaUnknown  MediaKind = "unknown"
)

// Media is one attachment of a message. Ref is the protocol-level handle the
// client needs to download the payload; Bytes and MimeType are filled by the
// media resolver.
type Media struct {
	Kind       MediaKind `json:"type"`
	PlatformID string    `json:"platformId"`
	Ref        string    `json:"apiMedia,omitempty"`
	Bytes      []byte    `json:"byte,omitempty"`
	MimeType   string    `json:"mimeType,omitempty"`
}

type Message struct {
	UUID              MessageID `json:"uuid"`
	ChatID            string    `json:"chatId"`
	PlatformMessageID string    `json:"platformMessageId"`
	FromID            string    `json:"fromId,omitempty"`
	FromName          string    `json:"fromName,omitempty"`
	Content           string    `json:"content"`
	Media             []Media   `json:"media"`
	Tokens            []string  `json:"jiebaTokens,omitempty"`
	// Embedding is stored in the vector column matching its length.
	Embedding         []float32 `json:"-"`
	PlatformTimestamp int64     `json:"platformTimestamp"`
	CreatedAt         int64     `json:"createdAt"`
	UpdatedAt         int64     `json:"updatedAt"`
}

// Clone returns a deep copy of m. Incoming messages are shared between
// subscribers, and the storage path mutates the copy it records.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Tokens = slices.Clone(m.Tokens)
	out.Embedding = slices.Clone(m.Embedding)
	if m.Media != nil {
		out.Media = make([]Media, len(m.Media))
		for i, item := range m.Media {
			item.Bytes = slices.Clone(item.Bytes)
			out.Media[i] = item
		}
	}
	return &out
}

// HasMedia reports whether the message carries at least one media item.
func (m *Message) HasMedia() bool {
	return len(m.Media) > 0
}

type RetrievalMessage struct {
	Message
	Similarity    float64 `json:"similarity,omitempty"`
	TimeRelevance float64 `json:"timeRelevance,omitempty"`
	CombinedScore float64 `json:"combinedScore,omitempty"`
}

type Dialog struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	MessageCount  int64  `json:"messageCount"`
	LastMessageAt int64  `json:"lastMessageDate,omitempty"`
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	IsBot     bool   `json:"isBot,omitempty"`
}

// Document is the searchable representation derived from one message.
type Document struct {
	ID               DocumentID `json:"id"`
	MessageID        MessageID  `json:"chatMessagesId"`
	Tags             []string   `json:"tags"`
	RawContent       string     `json:"rawContent"`
	ProcessedContent string     `json:"processedContent"`
	Tokens           []string   `json:"processedContentJiebaTokens"`
	Summary          string     `json:"summary"`
	Vector1536       []float32  `json:"-"`
	Vector1024       []float32  `json:"-"`
	Vector768        []float32  `json:"-"`
	CreatedAt        int64      `json:"createdAt"`
	UpdatedAt        int64      `json:"updatedAt"`
	DeletedAt        int64      `json:"deletedAt"`
}

// SetVector places vec in the slot matching its dimension. Vectors of any
// other length are ignored.
func (d *Document) SetVector(vec []float32) bool {
	switch len(vec) {
	case 1536:
		d.Vector1536 = vec
	case 1024:
		d.Vector1024 = vec
	case 768:
		d.Vector768 = vec
	default:
		return false
	}
	return true
}

const DefaultPageLimit = 10

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// OrDefault fills a zero limit with DefaultPageLimit and clamps a negative offset.
func (p *Pagination) OrDefault() Pagination {
	out := Pagination{Limit: DefaultPageLimit}
	if p == nil {
		return out
	}
	if p.Limit > 0 {
		out.Limit = p.Limit
	}
	if p.Offset > 0 {
		out.Offset = p.Offset
	}
	return out
}

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
