// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type MessageID string
type DocumentID string
type SessionID string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewDocumentID() DocumentID {
	return DocumentID(uuid.New().String())
}

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}
