package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/config"
	"github.com/user/tgsearch/internal/core"
	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/gram"
	"github.com/user/tgsearch/internal/retry"
	"github.com/user/tgsearch/internal/session"
	"github.com/user/tgsearch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubClient struct {
	mu        sync.Mutex
	connected bool
}

func (s *stubClient) Connect(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *stubClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *stubClient) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubClient) Me(context.Context) (*types.User, error) {
	return &types.User{ID: "7", Username: "reader"}, nil
}

func (s *stubClient) DownloadMedia(context.Context, *types.Media) ([]byte, error) {
	return nil, gram.ErrNotConnected
}

func (s *stubClient) Subscribe(func(gram.Incoming)) func() {
	return func() {}
}

type fixture struct {
	bridge   *Bridge
	sessions *session.Store
	client   *stubClient
	queue    *Queue
}

func newFixture(t *testing.T, backend db.Backend) *fixture {
	t.Helper()
	if backend == nil {
		backend = &db.SQLite{Path: ":memory:"}
	}
	gw := db.NewGateway(backend, testLogger())
	t.Cleanup(func() { gw.Close() })

	client := &stubClient{}
	deps := &core.Deps{
		Config:  config.NewMemoryProvider(config.Default()),
		Gateway: gw,
		Client:  client,
		Retry:   &retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
		Logger:  testLogger(),
	}
	core.NewStores(deps)

	queue := NewQueue(2, testLogger())
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	sessions := session.NewStore(t.TempDir())
	b, err := New(context.Background(), deps, sessions, queue, testLogger())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	return &fixture{bridge: b, sessions: sessions, client: client, queue: queue}
}

func mounted(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	require.NoError(t, f.bridge.Mount(context.Background()))
	return f
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMountAnnouncesActiveSession(t *testing.T) {
	f := newFixture(t, nil)
	next := f.bridge.Client().Next(bus.NameServerConnected)

	require.NoError(t, f.bridge.Mount(context.Background()))

	ev, err := next.Wait(waitCtx(t))
	require.NoError(t, err)
	id, err := f.sessions.ActiveID()
	require.NoError(t, err)
	require.Equal(t, bus.ServerConnected{SessionID: id, Connected: false}, ev)
}

func TestMountReturnsDatabaseFailure(t *testing.T) {
	f := newFixture(t, &db.Postgres{DSN: "postgres://postgres:x@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"})

	err := f.bridge.Mount(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect database")
}

func TestRegisteredEventsAreForwarded(t *testing.T) {
	f := mounted(t)
	ctx := context.Background()

	f.bridge.SendEvent(ctx, bus.ServerEventRegister{Event: bus.NameStorageDialogs})
	f.bridge.SendEvent(ctx, bus.ServerEventRegister{Event: bus.NameStorageDialogs})

	next := f.bridge.Client().Next(bus.NameStorageDialogs)
	f.bridge.SendEvent(ctx, bus.StorageRecordDialogs{Dialogs: []types.Dialog{{ID: "1", Name: "general", Type: "group"}}})
	f.bridge.SendEvent(ctx, bus.StorageFetchDialogs{})

	ev, err := next.Wait(waitCtx(t))
	require.NoError(t, err)
	dialogs := ev.(bus.StorageDialogs).Dialogs
	require.Len(t, dialogs, 1)
	require.Equal(t, "general", dialogs[0].Name)
	require.True(t, f.queue.WaitIdle(time.Second))
	require.Zero(t, f.bridge.Client().Pending(bus.NameStorageDialogs))
}

func TestUnregisteredEventsStayInCore(t *testing.T) {
	f := mounted(t)

	f.bridge.Client().Next(bus.NameStorageDialogs)
	f.bridge.SendEvent(context.Background(), bus.StorageFetchDialogs{})
	require.True(t, f.queue.WaitIdle(time.Second))

	require.Equal(t, 1, f.bridge.Client().Pending(bus.NameStorageDialogs))
}

func TestServerEventsAreNeverForwarded(t *testing.T) {
	f := mounted(t)

	f.bridge.SendEvent(context.Background(), bus.ServerEventRegister{Event: bus.NameServerConnected})
	f.bridge.Client().Next(bus.NameServerConnected)
	f.bridge.Core().Emit(bus.ServerConnected{SessionID: "x"})

	require.Equal(t, 1, f.bridge.Client().Pending(bus.NameServerConnected))
}

func TestSendRawRejectsUnknownEvents(t *testing.T) {
	f := mounted(t)

	f.bridge.SendRaw(context.Background(), "storage:drop:everything", []byte(`{}`))
	f.bridge.SendRaw(context.Background(), bus.NameStorageFetchMessages, []byte(`{"chatId":`))
	require.True(t, f.queue.WaitIdle(time.Second))
}

func TestCommandsRunInSendOrder(t *testing.T) {
	f := mounted(t)
	ctx := context.Background()
	f.bridge.SendEvent(ctx, bus.ServerEventRegister{Event: bus.NameStorageMessages})

	next := f.bridge.Client().Next(bus.NameStorageMessages)
	for i := 1; i <= 3; i++ {
		f.bridge.SendEvent(ctx, bus.StorageRecordMessages{Messages: []*types.Message{{
			ChatID:            "c1",
			PlatformMessageID: string(rune('0' + i)),
			Content:           "text",
			PlatformTimestamp: int64(i),
		}}})
	}
	f.bridge.SendEvent(ctx, bus.StorageFetchMessages{ChatID: "c1", Pagination: types.Pagination{Limit: 10}})

	ev, err := next.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Len(t, ev.(bus.StorageMessages).Messages, 3)
}

func TestWaitForEventServesWaitersInOrder(t *testing.T) {
	f := mounted(t)
	ctx := waitCtx(t)

	results := make([]chan string, 2)
	for i := range results {
		results[i] = make(chan string, 1)
		go func(out chan<- string) {
			ev, err := f.bridge.WaitForEvent(ctx, bus.NameServerConnected)
			if err != nil {
				out <- err.Error()
				return
			}
			out <- ev.(bus.ServerConnected).SessionID
		}(results[i])
		want := i + 1
		require.Eventually(t, func() bool {
			return f.bridge.Client().Pending(bus.NameServerConnected) == want
		}, time.Second, time.Millisecond)
	}

	f.bridge.Client().Emit(bus.ServerConnected{SessionID: "first"})
	f.bridge.Client().Emit(bus.ServerConnected{SessionID: "second"})

	require.Equal(t, "first", <-results[0])
	require.Equal(t, "second", <-results[1])
}

func TestWaitForEventHonoursContext(t *testing.T) {
	f := mounted(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := WaitFor[bus.AuthConnected](ctx, f.bridge)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, f.bridge.Client().Pending(bus.NameAuthConnected))
}

func TestLoginAndLogoutTrackSession(t *testing.T) {
	f := mounted(t)
	ctx := context.Background()

	f.bridge.SendEvent(ctx, bus.AuthLogin{Token: "1:abc"})
	require.True(t, f.queue.WaitIdle(time.Second))

	sess, err := f.bridge.ActiveSession()
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.True(t, sess.Connected)
	require.Equal(t, "reader", sess.Me.Username)
	require.True(t, f.client.Connected())

	f.bridge.SendEvent(ctx, bus.AuthLogout{})
	require.True(t, f.queue.WaitIdle(time.Second))

	require.False(t, f.client.Connected())
	newID, err := f.sessions.ActiveID()
	require.NoError(t, err)
	require.NotEqual(t, sess.ID, newID)
	all, err := f.sessions.List()
	require.NoError(t, err)
	require.Empty(t, all)
	require.Zero(t, f.bridge.Core().Pending(bus.NameAuthConnected))
	require.Zero(t, f.bridge.Core().Pending(bus.NameAuthLogout))
}

func TestCommandsBeforeMountAreDropped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.bridge.SendEvent(ctx, bus.ServerEventRegister{Event: bus.NameStorageDialogs})
	f.bridge.Client().Next(bus.NameStorageDialogs)
	f.bridge.SendEvent(ctx, bus.StorageFetchDialogs{})
	require.True(t, f.queue.WaitIdle(time.Second))
	require.Equal(t, 1, f.bridge.Client().Pending(bus.NameStorageDialogs))

	require.NoError(t, f.bridge.Mount(ctx))
	f.bridge.SendEvent(ctx, bus.StorageFetchDialogs{})
	require.True(t, f.queue.WaitIdle(time.Second))
	require.Zero(t, f.bridge.Client().Pending(bus.NameStorageDialogs))
}

func TestCommandsAfterLogoutUseNewSessionLane(t *testing.T) {
	f := mounted(t)
	ctx := context.Background()

	oldID, err := f.sessions.ActiveID()
	require.NoError(t, err)
	f.bridge.SendEvent(ctx, bus.AuthLogout{})
	require.True(t, f.queue.WaitIdle(time.Second))

	newID, err := f.sessions.ActiveID()
	require.NoError(t, err)
	require.NotEqual(t, oldID, newID)

	f.bridge.SendEvent(ctx, bus.StorageFetchDialogs{})
	require.True(t, f.queue.WaitIdle(time.Second))

	f.queue.mu.Lock()
	defer f.queue.mu.Unlock()
	require.Contains(t, f.queue.lanes, types.SessionID(oldID))
	require.Contains(t, f.queue.lanes, types.SessionID(newID))
}
