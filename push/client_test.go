package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/elijahnyp/node1_dashboard/state"
	"github.com/gorilla/websocket"
)

const waitTime = 2 * time.Second

// fakeServer is a bare Socket.IO endpoint; tests script the frames.
type fakeServer struct {
	srv          *httptest.Server
	conns        chan *fakeConn
	upgrader     websocket.Upgrader
	pingInterval int
	pingTimeout  int
}

type fakeConn struct {
	ws       *websocket.Conn
	received chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		conns:        make(chan *fakeConn, 8),
		pingInterval: 25000,
		pingTimeout:  20000,
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if r.URL.Path != "/socket.io/" || q.Get("EIO") != "4" || q.Get("transport") != "websocket" {
		http.Error(w, "bad endpoint", http.StatusBadRequest)
		return
	}
	ws, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	open := fmt.Sprintf(`0{"sid":"eng%d","upgrades":[],"pingInterval":%d,"pingTimeout":%d,"maxPayload":1000000}`,
		len(fs.conns), fs.pingInterval, fs.pingTimeout)
	if err := ws.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		return
	}
	fc := &fakeConn{ws: ws, received: make(chan string, 32)}
	go func() {
		defer close(fc.received)
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			fc.received <- string(msg)
		}
	}()
	fs.conns <- fc
}

func (fs *fakeServer) URL() string {
	return fs.srv.URL
}

func (fs *fakeServer) accept(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case fc := <-fs.conns:
		t.Cleanup(func() { _ = fc.ws.Close() }) //nolint:errcheck // test cleanup
		return fc
	case <-time.After(waitTime):
		t.Fatal("client never connected")
	}
	return nil
}

func (fs *fakeServer) expectNoConn(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-fs.conns:
		t.Fatal("client reconnected unexpectedly")
	case <-time.After(d):
	}
}

func (fc *fakeConn) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-fc.received:
		if !ok {
			t.Fatalf("connection closed while waiting for %q", want)
		}
		if got != want {
			t.Fatalf("server received %q, expected %q", got, want)
		}
	case <-time.After(waitTime):
		t.Fatalf("server never received %q", want)
	}
}

func (fc *fakeConn) send(t *testing.T, msg string) {
	t.Helper()
	if err := fc.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

// handshake answers the client's namespace CONNECT.
func (fc *fakeConn) handshake(t *testing.T, sid string) {
	t.Helper()
	fc.expect(t, "40")
	fc.send(t, fmt.Sprintf(`40{"sid":"%s"}`, sid))
}

type recorder struct {
	events chan Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan Event, 64)}
}

func (r *recorder) handle(ev Event) {
	r.events <- ev
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(waitTime):
		t.Fatal("no event received")
	}
	return nil
}

func (r *recorder) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(d):
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ReconnectionDelay = 10 * time.Millisecond
	opts.ReconnectionDelayMax = 20 * time.Millisecond
	opts.RandomizationFactor = 0
	opts.HandshakeTimeout = waitTime
	return opts
}

func dial(t *testing.T, url string, opts Options, rec *recorder) *Session {
	t.Helper()
	s, err := Dial(context.Background(), url, opts, rec.handle)
	if err != nil {
		t.Fatalf("Dial returned %v", err)
	}
	t.Cleanup(func() { _ = s.Close() }) //nolint:errcheck // test cleanup
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTime):
		t.Fatal("session did not stop")
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"http://localhost:5000", "", "ws://localhost:5000/socket.io/?EIO=4&transport=websocket"},
		{"https://node1.local", "/socket.io/", "wss://node1.local/socket.io/?EIO=4&transport=websocket"},
		{"ws://10.0.0.2:5000/", "/io/", "ws://10.0.0.2:5000/io/?EIO=4&transport=websocket"},
	}
	for _, tt := range tests {
		got, err := EndpointURL(tt.base, tt.path)
		if err != nil || got != tt.want {
			t.Errorf("EndpointURL(%s, %s) = %s, %v; expected %s", tt.base, tt.path, got, err, tt.want)
		}
	}

	for _, bad := range []string{"ftp://x", "http://", "::nope"} {
		if _, err := EndpointURL(bad, ""); err == nil {
			t.Errorf("EndpointURL(%s) should fail", bad)
		}
	}
}

func TestDial_BadURL(t *testing.T) {
	if _, err := Dial(context.Background(), "ftp://node1", DefaultOptions(), nil); err == nil {
		t.Error("Dial should reject an unusable url")
	}
}

func TestSession_DeliversDeviceEvents(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	s := dial(t, fs.URL(), testOptions(), rec)

	fc := fs.accept(t)
	fc.handshake(t, "sock1")

	if ev := rec.next(t); ev != (Connected{SID: "sock1"}) {
		t.Fatalf("first event = %#v", ev)
	}
	if s.ID() != "sock1" {
		t.Errorf("ID() = %s, expected sock1", s.ID())
	}

	fc.send(t, `42["motion",{"motion":"motion"}]`)
	if ev := rec.next(t); ev != (MotionUpdate{Motion: state.MotionDetected}) {
		t.Errorf("motion event = %#v", ev)
	}

	fc.send(t, `42["state",{"motion":"no-motion","led1":"on","led2":4}]`)
	want := StateUpdate{Snapshot: state.Snapshot{Motion: state.NoMotion, Led1: state.LedOn, Led2: 4}}
	if ev := rec.next(t); ev != want {
		t.Errorf("state event = %#v", ev)
	}

	fc.send(t, `42["led_update",{"led1":"off"}]`)
	ev := rec.next(t)
	if u, ok := ev.(LedUpdate); !ok || u.Led1 == nil || *u.Led1 != state.LedOff || u.Led2 != nil {
		t.Errorf("led_update event = %#v", ev)
	}

	// unknown and malformed events are dropped
	fc.send(t, `42["weather",{"temp":21}]`)
	fc.send(t, `42["motion",{}]`)
	fc.send(t, `42["led_update",{"led2":2}]`)
	ev = rec.next(t)
	if u, ok := ev.(LedUpdate); !ok || u.Led2 == nil || *u.Led2 != 2 || u.Led1 != nil {
		t.Errorf("expected the led2 update next, got %#v", ev)
	}
}

func TestSession_AnswersPing(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	dial(t, fs.URL(), testOptions(), rec)

	fc := fs.accept(t)
	fc.handshake(t, "sock1")
	rec.next(t)

	fc.send(t, "2")
	fc.expect(t, "3")
}

func TestSession_ServerDisconnectStopsReconnecting(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	s := dial(t, fs.URL(), testOptions(), rec)

	fc := fs.accept(t)
	fc.handshake(t, "sock1")
	rec.next(t)

	fc.send(t, "41")
	if ev := rec.next(t); ev != (Disconnected{Reason: ReasonServerDisconnect}) {
		t.Fatalf("event = %#v", ev)
	}
	waitDone(t, s)
	fs.expectNoConn(t, 100*time.Millisecond)
}

func TestSession_ReconnectsAfterTransportLoss(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	dial(t, fs.URL(), testOptions(), rec)

	fc := fs.accept(t)
	fc.handshake(t, "sock1")
	rec.next(t)

	_ = fc.ws.WriteControl(websocket.CloseMessage, //nolint:errcheck // test helper
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
	_ = fc.ws.Close() //nolint:errcheck // test helper

	if ev := rec.next(t); ev != (Disconnected{Reason: ReasonTransportClose}) {
		t.Fatalf("event = %#v", ev)
	}

	fc2 := fs.accept(t)
	if ev := rec.next(t); ev != (Reconnected{Attempt: 1}) {
		t.Fatalf("event = %#v", ev)
	}
	fc2.handshake(t, "sock2")
	if ev := rec.next(t); ev != (Connected{SID: "sock2"}) {
		t.Fatalf("event = %#v", ev)
	}
}

func TestSession_PingTimeout(t *testing.T) {
	fs := newFakeServer(t)
	fs.pingInterval = 30
	fs.pingTimeout = 30
	rec := newRecorder()
	opts := testOptions()
	opts.Reconnection = false
	s := dial(t, fs.URL(), opts, rec)

	fc := fs.accept(t)
	fc.handshake(t, "sock1")
	rec.next(t)

	if ev := rec.next(t); ev != (Disconnected{Reason: ReasonPingTimeout}) {
		t.Fatalf("event = %#v", ev)
	}
	waitDone(t, s)
}

func TestSession_CloseSendsDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	s := dial(t, fs.URL(), testOptions(), rec)

	fc := fs.accept(t)
	fc.handshake(t, "sock1")
	rec.next(t)

	if err := s.Close(); err != nil {
		t.Errorf("Close returned %v", err)
	}
	fc.expect(t, "41")

	if ev := rec.next(t); ev != (Disconnected{Reason: ReasonClientDisconnect}) {
		t.Errorf("event = %#v", ev)
	}

	_ = fc.ws.WriteMessage(websocket.TextMessage, []byte(`42["motion",{"motion":"motion"}]`)) //nolint:errcheck // conn may be gone
	rec.expectNone(t, 50*time.Millisecond)
	fs.expectNoConn(t, 50*time.Millisecond)

	// closing twice is fine
	if err := s.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestSession_CloseWhileReconnecting(t *testing.T) {
	rec := newRecorder()
	opts := testOptions()
	opts.ReconnectionDelay = time.Hour
	opts.ReconnectionDelayMax = time.Hour
	s := dial(t, "http://127.0.0.1:1", opts, rec)

	if _, ok := rec.next(t).(ConnectError); !ok {
		t.Fatal("expected a connect error")
	}

	closed := make(chan struct{})
	go func() {
		_ = s.Close() //nolint:errcheck // checked via closed
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(waitTime):
		t.Fatal("Close blocked on the reconnection delay")
	}
}

func TestSession_ReconnectFailed(t *testing.T) {
	fs := newFakeServer(t)
	url := fs.URL()
	fs.srv.Close()

	rec := newRecorder()
	opts := testOptions()
	opts.ReconnectionAttempts = 2
	s := dial(t, url, opts, rec)

	for i := 0; i < 3; i++ {
		if _, ok := rec.next(t).(ConnectError); !ok {
			t.Fatalf("attempt %d should report a connect error", i)
		}
	}
	if ev := rec.next(t); ev != (ReconnectFailed{Attempts: 2}) {
		t.Fatalf("event = %#v", ev)
	}
	waitDone(t, s)
}

func TestSession_ConnectRefused(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	s := dial(t, fs.URL(), testOptions(), rec)

	fc := fs.accept(t)
	fc.expect(t, "40")
	fc.send(t, `44{"message":"not authorized"}`)

	ev := rec.next(t)
	ce, ok := ev.(ConnectError)
	if !ok || !errors.Is(ce.Err, ErrConnectRefused) {
		t.Fatalf("event = %#v", ev)
	}
	waitDone(t, s)
	fs.expectNoConn(t, 50*time.Millisecond)
}

func TestSession_Namespace(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	opts := testOptions()
	opts.Namespace = "/node1"
	dial(t, fs.URL(), opts, rec)

	fc := fs.accept(t)
	fc.expect(t, "40/node1,")
	fc.send(t, `40/node1,{"sid":"ns1"}`)
	if ev := rec.next(t); ev != (Connected{SID: "ns1"}) {
		t.Fatalf("event = %#v", ev)
	}

	fc.send(t, `42["motion",{"motion":"motion"}]`)
	fc.send(t, `42/node1,["motion",{"motion":"no-motion"}]`)
	if ev := rec.next(t); ev != (MotionUpdate{Motion: state.NoMotion}) {
		t.Errorf("event = %#v", ev)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := Dial(ctx, fs.URL(), testOptions(), rec.handle)
	if err != nil {
		t.Fatalf("Dial returned %v", err)
	}

	fc := fs.accept(t)
	fc.handshake(t, "sock1")
	rec.next(t)

	cancel()
	waitDone(t, s)
	if ev := rec.next(t); !reflect.DeepEqual(ev, Disconnected{Reason: ReasonClientDisconnect}) {
		t.Errorf("event = %#v", ev)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after cancel returned %v", err)
	}
}
