package socket

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"nextmeeting_server/core/domain"
	"nextmeeting_server/core/service/notification"
	"nextmeeting_server/core/service/state"
	"nextmeeting_server/pkg/apperr"
	"nextmeeting_server/pkg/protocol"
)

func testHandler(t *testing.T, mutator EventMutator) (*RequestHandler, *state.ServerState, *notification.Engine) {
	t.Helper()
	st := state.New()
	engine := notification.NewEngine(notification.DefaultConfig(), nil, zerolog.Nop())
	st.SetSnoozeView(engine)
	return NewRequestHandler(st, engine, mutator, nil, zerolog.Nop()), st, engine
}

func startServer(t *testing.T, handler *RequestHandler) (string, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nextmeeting.sock")
	cfg := DefaultConfig()
	cfg.Path = path

	server, err := NewServer(cfg, handler, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.Run(ctx)
		close(done)
	}()

	return path, func() {
		cancel()
		<-done
	}
}

func roundTrip(t *testing.T, conn net.Conn, requestID string, req protocol.Request) protocol.Envelope[protocol.Response] {
	t.Helper()
	writer := protocol.NewFrameWriter(conn)
	reader := protocol.NewFrameReader(conn)

	envelope := protocol.NewEnvelope(requestID, req)
	if err := writer.WriteMessage(&envelope); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	var reply protocol.Envelope[protocol.Response]
	ok, err := reader.ReadMessage(&reply)
	if err != nil || !ok {
		t.Fatalf("ReadMessage() = %v, %v", ok, err)
	}
	return reply
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("unix", path, time.Second)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial: %v", err)
	return nil
}

func TestPingRoundTrip(t *testing.T) {
	handler, _, _ := testHandler(t, nil)
	path, stop := startServer(t, handler)
	defer stop()

	conn := dial(t, path)
	defer conn.Close()

	reply := roundTrip(t, conn, "r1", protocol.NewPing())
	if reply.RequestID != "r1" {
		t.Errorf("RequestID = %q, want r1", reply.RequestID)
	}
	if reply.Payload.Type != protocol.ResponsePong {
		t.Errorf("Payload = %+v, want pong", reply.Payload)
	}
	if reply.ProtocolVersion != protocol.ProtocolVersion {
		t.Errorf("ProtocolVersion = %q", reply.ProtocolVersion)
	}
}

func TestMultipleRequestsPreserveOrder(t *testing.T) {
	handler, _, _ := testHandler(t, nil)
	path, stop := startServer(t, handler)
	defer stop()

	conn := dial(t, path)
	defer conn.Close()

	for _, id := range []string{"a", "b", "c"} {
		reply := roundTrip(t, conn, id, protocol.NewPing())
		if reply.RequestID != id {
			t.Errorf("RequestID = %q, want %q", reply.RequestID, id)
		}
	}
}

func TestGetMeetingsAndSnooze(t *testing.T) {
	handler, st, engine := testHandler(t, nil)
	now := time.Now()
	st.SetMeetings([]domain.MeetingView{{
		ID:         "1",
		Title:      "Standup",
		StartLocal: now.Add(time.Hour),
		EndLocal:   now.Add(2 * time.Hour),
		CalendarID: "primary",
	}})

	path, stop := startServer(t, handler)
	defer stop()

	conn := dial(t, path)
	defer conn.Close()

	reply := roundTrip(t, conn, "m1", protocol.NewGetMeetings(nil))
	if reply.Payload.Type != protocol.ResponseMeetings || len(reply.Payload.Meetings) != 1 {
		t.Errorf("meetings reply = %+v", reply.Payload)
	}

	reply = roundTrip(t, conn, "s1", protocol.NewSnooze(30))
	if reply.Payload.Type != protocol.ResponseOk {
		t.Errorf("snooze reply = %+v", reply.Payload)
	}
	if !engine.IsSnoozed(time.Now()) {
		t.Error("engine not snoozed after request")
	}

	reply = roundTrip(t, conn, "st1", protocol.NewStatus())
	if reply.Payload.SnoozedUntil == nil {
		t.Error("status should read snooze through the engine")
	}
}

func TestMutateEvent(t *testing.T) {
	calls := 0
	mutator := func(_ context.Context, provider, calendarID, eventID string, action domain.MutationAction) error {
		calls++
		if provider != "google:work" || calendarID != "primary" || eventID != "evt-1" || action != domain.MutationDecline {
			t.Errorf("mutator args = %s %s %s %s", provider, calendarID, eventID, action)
		}
		return nil
	}
	handler, _, _ := testHandler(t, mutator)
	path, stop := startServer(t, handler)
	defer stop()

	conn := dial(t, path)
	defer conn.Close()

	reply := roundTrip(t, conn, "r1", protocol.NewMutateEvent("google:work", "primary", "evt-1", protocol.MutationDecline))
	if reply.Payload.Type != protocol.ResponseOk || calls != 1 {
		t.Errorf("reply = %+v, calls = %d", reply.Payload, calls)
	}
}

func TestMutateEventErrors(t *testing.T) {
	handler, _, _ := testHandler(t, nil) // no mutator configured
	path, stop := startServer(t, handler)
	defer stop()

	conn := dial(t, path)
	defer conn.Close()

	reply := roundTrip(t, conn, "r1", protocol.NewMutateEvent("google", "cal", "evt", protocol.MutationDelete))
	if reply.Payload.Type != protocol.ResponseError || reply.Payload.Code != protocol.ErrProviderError {
		t.Errorf("reply = %+v, want provider_error", reply.Payload)
	}

	reply = roundTrip(t, conn, "r2", protocol.NewMutateEvent("", "", "", protocol.MutationDelete))
	if reply.Payload.Code != protocol.ErrInvalidRequest {
		t.Errorf("reply = %+v, want invalid_request", reply.Payload)
	}
}

func TestMalformedPayload(t *testing.T) {
	handler, _, _ := testHandler(t, nil)
	path, stop := startServer(t, handler)
	defer stop()

	conn := dial(t, path)
	defer conn.Close()

	writer := protocol.NewFrameWriter(conn)
	raw := protocol.NewEnvelope("bad", json.RawMessage(`{"type":42}`))
	if err := writer.WriteMessage(&raw); err != nil {
		t.Fatal(err)
	}

	reader := protocol.NewFrameReader(conn)
	var reply protocol.Envelope[protocol.Response]
	ok, err := reader.ReadMessage(&reply)
	if err != nil || !ok {
		t.Fatalf("ReadMessage() = %v, %v", ok, err)
	}
	if reply.Payload.Code != protocol.ErrInvalidRequest {
		t.Errorf("reply = %+v, want invalid_request", reply.Payload)
	}
}

func TestShutdownRequest(t *testing.T) {
	shutdowns := 0
	st := state.New()
	handler := NewRequestHandler(st, nil, nil, func() { shutdowns++ }, zerolog.Nop())

	path, stop := startServer(t, handler)
	defer stop()

	conn := dial(t, path)
	defer conn.Close()

	reply := roundTrip(t, conn, "r1", protocol.NewShutdown())
	if reply.Payload.Type != protocol.ResponseOk {
		t.Errorf("reply = %+v", reply.Payload)
	}
	if !st.ShutdownRequested() || shutdowns != 1 {
		t.Errorf("shutdown not propagated: requested=%v hooks=%d", st.ShutdownRequested(), shutdowns)
	}

	// Subsequent non-ping requests are refused.
	reply = roundTrip(t, conn, "r2", protocol.NewStatus())
	if reply.Payload.Code != protocol.ErrShuttingDown {
		t.Errorf("reply = %+v, want shutting_down", reply.Payload)
	}
}

func TestStaleSocketReclaim(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nextmeeting.sock")

	// Leave a socket file behind with no listener on it.
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	listener.Close()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Close removed the file; plant a plain file to stand in for the
		// stale socket.
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	handler, _, _ := testHandler(t, nil)
	cfg := DefaultConfig()
	cfg.Path = path
	server, err := NewServer(cfg, handler, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer() with stale socket error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { server.Run(ctx); close(done) }()

	conn := dial(t, path)
	conn.Close()
	cancel()
	<-done

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("socket file not removed on shutdown")
	}
}

func TestSocketInUse(t *testing.T) {
	handler, _, _ := testHandler(t, nil)
	path, stop := startServer(t, handler)
	defer stop()

	cfg := DefaultConfig()
	cfg.Path = path
	_, err := NewServer(cfg, handler, zerolog.Nop())
	if !errors.Is(err, ErrSocketInUse) {
		t.Errorf("NewServer() on live socket = %v, want ErrSocketInUse", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want protocol.ErrorCode
	}{
		{"auth", apperr.AuthenticationFailed(""), protocol.ErrAuthenticationFailed},
		{"authz", apperr.AuthorizationFailed("forbidden"), protocol.ErrAuthenticationFailed},
		{"not found", apperr.NotFound("event"), protocol.ErrNotFound},
		{"rate limited", apperr.RateLimited(""), protocol.ErrRateLimited},
		{"timeout", apperr.Timeout("fetch"), protocol.ErrTimeout},
		{"bad request", apperr.BadRequest("nope"), protocol.ErrInvalidRequest},
		{"network collapses", apperr.Network("fetch", errors.New("refused")), protocol.ErrProviderError},
		{"server collapses", apperr.ServerError("500"), protocol.ErrProviderError},
		{"plain error", errors.New("boom"), protocol.ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := MapError(tt.err)
			if resp.Code != tt.want {
				t.Errorf("MapError() code = %q, want %q", resp.Code, tt.want)
			}
		})
	}
}
