package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/user/tgsearch/internal/bridge"
	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/config"
	"github.com/user/tgsearch/internal/core"
	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *session.Store) {
	t.Helper()
	gw := db.NewGateway(&db.SQLite{Path: ":memory:"}, testLogger())
	t.Cleanup(func() { gw.Close() })

	deps := &core.Deps{
		Config:  config.NewMemoryProvider(config.Default()),
		Gateway: gw,
		Logger:  testLogger(),
	}
	core.NewStores(deps)

	queue := bridge.NewQueue(2, testLogger())
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	sessions := session.NewStore(t.TempDir())
	ts := httptest.NewServer(NewServer(deps, sessions, queue, testLogger()))
	t.Cleanup(ts.Close)
	return ts, sessions
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, ev bus.Event) {
	t.Helper()
	env, err := bus.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func readEvent(t *testing.T, conn *websocket.Conn) bus.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := bus.DecodeEnvelope(raw)
	require.NoError(t, err)
	return ev
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, false, body["database"])
}

func TestWebSocketRoundTrip(t *testing.T) {
	ts, sessions := newTestServer(t)
	conn := dial(t, ts)

	hello := readEvent(t, conn)
	id, err := sessions.ActiveID()
	require.NoError(t, err)
	require.Equal(t, bus.ServerConnected{SessionID: id}, hello)

	send(t, conn, bus.ServerEventRegister{Event: bus.NameStorageDialogs})
	send(t, conn, bus.StorageRecordDialogs{Dialogs: nil})
	send(t, conn, bus.StorageFetchDialogs{})

	got := readEvent(t, conn)
	dialogs, ok := got.(bus.StorageDialogs)
	require.True(t, ok)
	require.Empty(t, dialogs.Dialogs)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, true, body["database"])
}

func TestWebSocketSearch(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn)

	send(t, conn, bus.ServerEventRegister{Event: bus.NameStorageSearchMessagesData})
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "storage:record:messages",
		"data": map[string]any{"messages": []map[string]any{
			{"chatId": "c1", "platformMessageId": "1", "content": "golang channels", "platformTimestamp": 1000},
			{"chatId": "c1", "platformMessageId": "2", "content": "rust lifetimes", "platformTimestamp": 2000},
		}},
	}))
	send(t, conn, bus.StorageSearchMessages{Content: "channels"})

	got := readEvent(t, conn).(bus.StorageSearchMessagesData)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "golang channels", got.Messages[0].Content)
}

func TestSessionsAPI(t *testing.T) {
	ts, sessions := newTestServer(t)
	id, err := sessions.ActiveID()
	require.NoError(t, err)
	connected := true
	_, err = sessions.UpdateActive(id, session.Patch{Connected: &connected})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Equal(t, id, list[0].ID)
	require.True(t, list[0].Active)
	require.True(t, list[0].Connected)

	missing, err := http.Get(ts.URL + "/api/sessions/nope")
	require.NoError(t, err)
	missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}
