// internal/types/models_test.go
package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginationOrDefault(t *testing.T) {
	var nilPage *Pagination
	require.Equal(t, Pagination{Limit: 10}, nilPage.OrDefault())
	require.Equal(t, Pagination{Limit: 10, Offset: 0}, (&Pagination{Offset: -3}).OrDefault())
	require.Equal(t, Pagination{Limit: 2, Offset: 4}, (&Pagination{Limit: 2, Offset: 4}).OrDefault())
}

func TestDocumentSetVector(t *testing.T) {
	var d Document
	require.True(t, d.SetVector(make([]float32, 1024)))
	require.Len(t, d.Vector1024, 1024)
	require.Nil(t, d.Vector1536)
	require.False(t, d.SetVector(make([]float32, 3)))
}

func TestMessageClone(t *testing.T) {
	orig := &Message{
		UUID:    NewMessageID(),
		Content: "hello",
		Media:   []Media{{Kind: MediaPhoto, Bytes: []byte("abc")}},
		Tokens:  []string{"hello"},
	}
	c := orig.Clone()
	require.Equal(t, orig, c)

	c.Media[0].Bytes[0] = 'x'
	c.Media[0].MimeType = "image/png"
	c.Tokens[0] = "changed"
	c.UUID = NewMessageID()
	require.Equal(t, "abc", string(orig.Media[0].Bytes))
	require.Empty(t, orig.Media[0].MimeType)
	require.Equal(t, "hello", orig.Tokens[0])
	require.NotEqual(t, orig.UUID, c.UUID)

	var nilMsg *Message
	require.Nil(t, nilMsg.Clone())
}
