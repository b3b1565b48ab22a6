package connection_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/exchange-ws/internal/connection"
	"github.com/rickgao/exchange-ws/internal/conntest"
	"github.com/rickgao/exchange-ws/internal/model"
)

func newSession(t *testing.T, srv *conntest.Server) *connection.Session {
	t.Helper()
	cfg := connection.DefaultSessionConfig()
	cfg.AckTimeout = time.Second
	s := connection.NewSession(cfg, srv.Dial, nil, nil)
	t.Cleanup(s.Flush)
	return s
}

func isChannel(ch model.Channel) func(model.Event) bool {
	return func(ev model.Event) bool { return ev.Channel == ch }
}

func TestSession_LazyConnect(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)

	if s.IsConnected() {
		t.Fatal("session should not connect before first use")
	}
	if srv.Dials() != 0 {
		t.Fatalf("Dials = %d, want 0", srv.Dials())
	}

	if _, err := s.EnsureConnection(context.Background()); err != nil {
		t.Fatalf("EnsureConnection: %v", err)
	}
	if _, err := s.EnsureConnection(context.Background()); err != nil {
		t.Fatalf("EnsureConnection: %v", err)
	}
	if srv.Dials() != 1 {
		t.Errorf("Dials = %d, want 1", srv.Dials())
	}
}

func TestSession_ConcurrentConnectDialsOnce(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.EnsureConnection(context.Background()); err != nil {
				t.Errorf("EnsureConnection: %v", err)
			}
		}()
	}
	wg.Wait()

	if srv.Dials() != 1 {
		t.Errorf("Dials = %d, want 1", srv.Dials())
	}
}

func TestSession_DialFailure(t *testing.T) {
	srv := conntest.NewServer()
	boom := errors.New("refused")
	srv.FailDial(boom)
	s := newSession(t, srv)

	_, err := s.EnsureConnection(context.Background())
	var connErr *connection.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped dial error, got %v", err)
	}
	if s.IsConnected() {
		t.Error("failed dial should leave session disconnected")
	}
}

func TestSession_AuthenticateOnce(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Authenticate(context.Background(), "tok"); err != nil {
				t.Errorf("Authenticate: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := s.Authenticate(context.Background(), "tok"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if n := srv.Count("subscribe", "auth"); n != 1 {
		t.Errorf("auth frames = %d, want 1", n)
	}
	if !s.IsAuthenticated() {
		t.Error("expected IsAuthenticated")
	}

	f, _ := srv.WaitFor(time.Second, func(f conntest.Frame) bool { return f.Str("channel") == "auth" })
	if f.Str("token") != "tok" {
		t.Errorf("auth frame token = %q, want tok", f.Str("token"))
	}
}

func TestSession_AuthenticateRejected(t *testing.T) {
	srv := conntest.NewServer()
	srv.Reject("auth", "Authentication Failed")
	s := newSession(t, srv)

	err := s.Authenticate(context.Background(), "bad")
	var rejected *connection.AuthenticationRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected AuthenticationRejected, got %v", err)
	}
	if rejected.Text != "Authentication Failed" {
		t.Errorf("Text = %q", rejected.Text)
	}
	if s.IsAuthenticated() {
		t.Error("rejected auth must not mark the session authenticated")
	}
}

func TestSession_SendWithTokenAuthenticatesFirst(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)

	frame := model.NewFrame(model.ActionSubscribe, model.ChannelBalances)
	if err := s.Send(context.Background(), frame, "tok"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sent := srv.Sent()
	if len(sent) < 2 {
		t.Fatalf("sent %d frames, want at least 2", len(sent))
	}
	if sent[0].Str("channel") != "auth" || sent[1].Str("channel") != "balances" {
		t.Errorf("frame order = %s, %s; want auth, balances", sent[0].Str("channel"), sent[1].Str("channel"))
	}
}

func TestWaiter_Timeout(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)

	w := s.Expect(isChannel(model.ChannelTicker), nil)
	_, err := w.Wait(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, connection.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestWaiter_ContextCancelled(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := s.Expect(isChannel(model.ChannelTicker), nil)
	if _, err := w.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaiter_FirstMatchWins(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)
	if _, err := s.EnsureConnection(context.Background()); err != nil {
		t.Fatal(err)
	}

	var hooked atomic.Int32
	first := s.Expect(isChannel(model.ChannelTicker), func(model.Event) { hooked.Add(1) })
	second := s.Expect(isChannel(model.ChannelTicker), nil)

	srv.Push(`{"seqnum":1,"channel":"ticker","event":"snapshot","symbol":"BTC-USD"}`)

	ev, err := first.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("first waiter: %v", err)
	}
	if ev.Seqnum != 1 {
		t.Errorf("Seqnum = %d, want 1", ev.Seqnum)
	}
	if hooked.Load() != 1 {
		t.Errorf("onMatch ran %d times, want 1", hooked.Load())
	}

	if _, err := second.Wait(context.Background(), 20*time.Millisecond); !errors.Is(err, connection.ErrTimeout) {
		t.Errorf("second waiter should not have consumed the frame, got %v", err)
	}
}

func TestSession_RoutesToActiveListeners(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)
	if _, err := s.EnsureConnection(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := make(chan model.Event, 4)
	key := connection.NewKey(model.ChannelTicker, connection.Params{"symbol": "BTC-USD"})
	l, err := s.Reserve(key, func(ev model.Event) { got <- ev })
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// Pending listeners receive nothing. Frames are dispatched in order, so
	// once the heartbeat is claimed the ticker frame has been handled.
	barrier := s.Expect(isChannel(model.ChannelHeartbeat), nil)
	srv.Push(`{"seqnum":1,"channel":"ticker","event":"snapshot","symbol":"BTC-USD"}`)
	srv.Push(`{"seqnum":2,"channel":"heartbeat","event":"updated"}`)
	if _, err := barrier.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if !s.Activate(l) {
		t.Fatal("Activate should succeed")
	}
	srv.Push(`{"seqnum":3,"channel":"ticker","event":"snapshot","symbol":"ETH-USD"}`)
	srv.Push(`{"seqnum":4,"channel":"ticker","event":"snapshot","symbol":"BTC-USD"}`)

	select {
	case ev := <-got:
		if ev.Seqnum != 4 {
			t.Errorf("Seqnum = %d, want 4", ev.Seqnum)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for routed frame")
	}

	if !s.IsSubscribed(key) {
		t.Error("expected IsSubscribed")
	}
}

func TestSession_ReserveDuplicate(t *testing.T) {
	s := newSession(t, conntest.NewServer())
	key := connection.NewKey(model.ChannelHeartbeat, nil)

	if _, err := s.Reserve(key, func(model.Event) {}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := s.Reserve(key, func(model.Event) {}); !errors.Is(err, connection.ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}
	if n := len(s.Listeners()); n != 1 {
		t.Errorf("Listeners = %d, want 1", n)
	}
}

func TestSession_RemoveAndRestore(t *testing.T) {
	s := newSession(t, conntest.NewServer())
	key := connection.NewKey(model.ChannelHeartbeat, nil)

	l, _ := s.Reserve(key, func(model.Event) {})
	if _, ok := s.Remove(key); ok {
		t.Fatal("Remove must ignore pending listeners")
	}
	s.Activate(l)

	removed, ok := s.Remove(key)
	if !ok || removed != l {
		t.Fatal("Remove should return the active listener")
	}
	if s.IsSubscribed(key) {
		t.Fatal("listener should be gone after Remove")
	}
	if !s.Restore(removed) {
		t.Fatal("Restore should succeed")
	}
	if !s.IsSubscribed(key) {
		t.Error("listener should be back after Restore")
	}

	removed, _ = s.Remove(key)
	s.Flush()
	if s.Restore(removed) {
		t.Error("Restore after Flush must be a no-op")
	}
}

func TestSession_ReleaseOnlyOwnListener(t *testing.T) {
	s := newSession(t, conntest.NewServer())
	key := connection.NewKey(model.ChannelHeartbeat, nil)

	stale, _ := s.Reserve(key, func(model.Event) {})
	s.Flush()
	fresh, _ := s.Reserve(key, func(model.Event) {})

	s.Release(stale)
	if s.Activate(stale) {
		t.Error("Activate of a flushed listener must fail")
	}
	if !s.Activate(fresh) {
		t.Error("fresh listener should survive release of the stale one")
	}
}

func TestSession_Flush(t *testing.T) {
	srv := conntest.NewServer()
	s := newSession(t, srv)

	if err := s.Authenticate(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	key := connection.NewKey(model.ChannelHeartbeat, nil)
	l, _ := s.Reserve(key, func(model.Event) {})
	s.Activate(l)

	w := s.Expect(isChannel(model.ChannelTicker), nil)
	s.Flush()

	if _, err := w.Wait(context.Background(), time.Second); !errors.Is(err, connection.ErrFlushed) {
		t.Errorf("pending waiter: expected ErrFlushed, got %v", err)
	}
	if s.IsConnected() || s.IsAuthenticated() {
		t.Error("flush must drop connection and authentication")
	}
	if len(s.Listeners()) != 0 {
		t.Error("flush must clear listeners")
	}

	if err := s.Authenticate(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if srv.Dials() != 2 {
		t.Errorf("Dials = %d, want 2", srv.Dials())
	}
	if n := srv.Count("subscribe", "auth"); n != 2 {
		t.Errorf("auth frames = %d, want 2", n)
	}
}

func TestSession_ConnectionLost(t *testing.T) {
	srv := conntest.NewServer()
	lost := make(chan error, 1)
	cfg := connection.DefaultSessionConfig()
	cfg.OnDisconnect = func(err error) { lost <- err }
	s := connection.NewSession(cfg, srv.Dial, nil, nil)
	defer s.Flush()

	if err := s.Authenticate(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	l, _ := s.Reserve(connection.NewKey(model.ChannelHeartbeat, nil), func(model.Event) {})
	s.Activate(l)
	w := s.Expect(isChannel(model.ChannelTicker), nil)

	srv.Drop(errors.New("reset by peer"))

	_, err := w.Wait(context.Background(), time.Second)
	if !errors.Is(err, connection.ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}
	var connErr *connection.ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("expected ConnectionError, got %T", err)
	}

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("OnDisconnect not called")
	}

	if s.IsConnected() || s.IsAuthenticated() || len(s.Listeners()) != 0 {
		t.Error("connection loss must reset session state")
	}

	if _, err := s.EnsureConnection(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if srv.Dials() != 2 {
		t.Errorf("Dials = %d, want 2", srv.Dials())
	}
}
