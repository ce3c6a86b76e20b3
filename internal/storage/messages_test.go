package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/types"
)

func TestMessageRecordKeepsStoredID(t *testing.T) {
	gw := newGateway(t)
	ctx := context.Background()
	store := NewMessageStore(gw, nil, testLogger())

	first := &types.Message{ChatID: "c", PlatformMessageID: "1", Content: "hello"}
	require.NoError(t, store.Record(ctx, []*types.Message{first}))
	require.NotEmpty(t, first.UUID)

	again := &types.Message{UUID: types.NewMessageID(), ChatID: "c", PlatformMessageID: "1", Content: "edited"}
	require.NoError(t, store.Record(ctx, []*types.Message{again}))
	require.Equal(t, first.UUID, again.UUID)

	msgs, err := store.FetchByChat(ctx, "c", nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "edited", msgs[0].Content)
}

func TestMessageRecordDuplicateKeysInBatch(t *testing.T) {
	gw := newGateway(t)
	ctx := context.Background()
	store := NewMessageStore(gw, nil, testLogger())

	early := &types.Message{ChatID: "c", PlatformMessageID: "1", Content: "draft"}
	other := &types.Message{ChatID: "c", PlatformMessageID: "2", Content: "other"}
	late := &types.Message{ChatID: "c", PlatformMessageID: "1", Content: "final"}
	require.NoError(t, store.Record(ctx, []*types.Message{early, other, late}))

	require.Equal(t, late.UUID, early.UUID)
	require.Equal(t, 2, countRows(t, gw, "chat_messages"))
	msgs, err := store.FetchByChat(ctx, "c", nil)
	require.NoError(t, err)
	contents := []string{msgs[0].Content, msgs[1].Content}
	require.ElementsMatch(t, []string{"final", "other"}, contents)
}

func TestLastByKey(t *testing.T) {
	in := []string{"a1", "b1", "a2", "c1", "b2"}
	out := lastByKey(in, func(s string) byte { return s[0] })
	require.Equal(t, []string{"a2", "c1", "b2"}, out)

	unique := []string{"x", "y"}
	require.Equal(t, unique, lastByKey(unique, func(s string) string { return s }))
}

func TestMessageRecordDropsMediaBytes(t *testing.T) {
	gw := newGateway(t)
	ctx := context.Background()
	store := NewMessageStore(gw, nil, testLogger())

	require.NoError(t, store.Record(ctx, []*types.Message{{
		ChatID: "c", PlatformMessageID: "1",
		Media: []types.Media{{Kind: types.MediaPhoto, PlatformID: "p1", Bytes: []byte("img"), MimeType: "image/png"}},
	}}))

	msgs, err := store.FetchByChat(ctx, "c", nil)
	require.NoError(t, err)
	require.Len(t, msgs[0].Media, 1)
	require.Equal(t, "p1", msgs[0].Media[0].PlatformID)
	require.Equal(t, "image/png", msgs[0].Media[0].MimeType)
	require.Nil(t, msgs[0].Media[0].Bytes)
}

func TestMessageFetchByChatNewestFirst(t *testing.T) {
	gw := newGateway(t)
	seedMessages(t, gw, 3)

	msgs, err := NewMessageStore(gw, nil, testLogger()).FetchByChat(context.Background(), "chat-1", &types.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "3", msgs[0].PlatformMessageID)
	require.Equal(t, "2", msgs[1].PlatformMessageID)
}

func TestMessageContextWindow(t *testing.T) {
	gw := newGateway(t)
	seedMessages(t, gw, 7)
	store := NewMessageStore(gw, nil, testLogger())

	msgs, err := store.Context(context.Background(), "chat-1", "4", 2, 1)
	require.NoError(t, err)
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.PlatformMessageID)
	}
	require.Equal(t, []string{"2", "3", "4", "5"}, ids)

	_, err = store.Context(context.Background(), "chat-1", "99", 1, 1)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestMessageSearchText(t *testing.T) {
	gw := newGateway(t)
	ctx := context.Background()
	store := NewMessageStore(gw, nil, testLogger())

	require.NoError(t, store.Record(ctx, []*types.Message{
		{ChatID: "a", PlatformMessageID: "1", Content: "Gophers like Go"},
		{ChatID: "b", PlatformMessageID: "2", Content: "go away"},
		{ChatID: "a", PlatformMessageID: "3", Content: "nothing here"},
	}))

	got, err := store.Search(ctx, SearchQuery{Content: "go"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = store.Search(ctx, SearchQuery{ChatID: "a", Content: "go"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].PlatformMessageID)
	require.Equal(t, 1.0, got[0].Similarity)
}

func TestMessageSearchVectorRanksByCombinedScore(t *testing.T) {
	gw := newGateway(t)
	ctx := context.Background()
	store := NewMessageStore(gw, nil, testLogger())
	now := time.UnixMilli(10 * 24 * 3600 * 1000)
	store.now = func() time.Time { return now }

	near := oneHot(768, 0)
	far := make([]float32, 768)
	far[0], far[1] = 1, 1

	require.NoError(t, store.Record(ctx, []*types.Message{
		{ChatID: "c", PlatformMessageID: "near", Content: "x", Embedding: near, PlatformTimestamp: now.UnixMilli()},
		{ChatID: "c", PlatformMessageID: "far", Content: "y", Embedding: far, PlatformTimestamp: now.UnixMilli()},
		{ChatID: "c", PlatformMessageID: "none", Content: "z"},
	}))

	got, err := store.Search(ctx, SearchQuery{Embedding: near})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "near", got[0].PlatformMessageID)
	require.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	require.InDelta(t, 1.0, got[0].TimeRelevance, 1e-6)
	require.InDelta(t, 1.0, got[0].CombinedScore, 1e-6)
	require.Less(t, got[1].Similarity, got[0].Similarity)

	_, err = store.Search(ctx, SearchQuery{Embedding: []float32{1, 2}})
	require.Error(t, err)
}

func TestMessageMissingEmbeddings(t *testing.T) {
	gw := newGateway(t)
	ctx := context.Background()
	store := NewMessageStore(gw, nil, testLogger())

	require.NoError(t, store.Record(ctx, []*types.Message{
		{ChatID: "c", PlatformMessageID: "1", Content: "needs vector"},
		{ChatID: "c", PlatformMessageID: "2", Content: "has vector", Embedding: oneHot(768, 0)},
		{ChatID: "c", PlatformMessageID: "3"},
	}))

	msgs, err := store.MissingEmbeddings(ctx, 768, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "1", msgs[0].PlatformMessageID)

	msgs[0].Embedding = oneHot(768, 1)
	require.NoError(t, store.Record(ctx, msgs))

	msgs, err = store.MissingEmbeddings(ctx, 768, 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
