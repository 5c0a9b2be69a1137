// Package push is a Socket.IO client for the Node1 push channel. It speaks
// Engine.IO v4 over a websocket only and reconnects the way socket.io-client
// does, turning device events into typed values.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler receives every event of a session, one at a time, from the
// session's read goroutine. It must not call Close.
type Handler func(Event)

type Options struct {
	Header               http.Header
	Dialer               *websocket.Dialer
	Logger               zerolog.Logger
	Path                 string
	Namespace            string
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	HandshakeTimeout     time.Duration
	RandomizationFactor  float64
	// 0 retries forever.
	ReconnectionAttempts int
	Reconnection         bool
}

// DefaultOptions matches socket.io-client's defaults with reconnection on.
func DefaultOptions() Options {
	return Options{
		Logger:               zerolog.Nop(),
		Path:                 "/socket.io/",
		Namespace:            "/",
		Reconnection:         true,
		ReconnectionDelay:    time.Second,
		ReconnectionDelayMax: 5 * time.Second,
		RandomizationFactor:  0.5,
		HandshakeTimeout:     20 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Path == "" {
		o.Path = d.Path
	}
	if o.Namespace == "" {
		o.Namespace = d.Namespace
	}
	if o.ReconnectionDelay <= 0 {
		o.ReconnectionDelay = d.ReconnectionDelay
	}
	if o.ReconnectionDelayMax <= 0 {
		o.ReconnectionDelayMax = d.ReconnectionDelayMax
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.HandshakeTimeout,
		}
	}
	return o
}

var (
	// ErrServerDisconnect ends a session: the server kicked the socket and
	// socket.io clients don't reconnect after that.
	ErrServerDisconnect = errors.New("server disconnected the socket")
	// ErrConnectRefused ends a session: the namespace refused the connect.
	ErrConnectRefused = errors.New("connection refused by server")

	errEngineClose = errors.New("engine close packet")
)

const writeWait = 5 * time.Second

// EndpointURL turns the device's base URL into the websocket endpoint,
// e.g. http://localhost:5000 -> ws://localhost:5000/socket.io/?EIO=4&transport=websocket.
func EndpointURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing push url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported push url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("push url %q has no host", base)
	}
	if path == "" {
		path = "/socket.io/"
	}
	u.Path = path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Session is one subscription to the push channel, including all of its
// reconnections. It is created by Dial and ends with Close.
type Session struct {
	ctx     context.Context
	handler Handler
	conn    *websocket.Conn
	backoff *backoff
	cancel  context.CancelFunc
	done    chan struct{}
	log     zerolog.Logger
	url     string
	sid     string
	opts    Options
	mu      sync.Mutex
	writeMu sync.Mutex
	closed  bool
}

// Dial starts a session against base and returns right away; connection
// progress arrives as events. It only fails for an unusable URL.
func Dial(ctx context.Context, base string, opts Options, h Handler) (*Session, error) {
	opts = opts.withDefaults()
	endpoint, err := EndpointURL(base, opts.Path)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:     sctx,
		cancel:  cancel,
		handler: h,
		done:    make(chan struct{}),
		log:     opts.Logger,
		url:     endpoint,
		opts:    opts,
		backoff: newBackoff(opts.ReconnectionDelay, opts.ReconnectionDelayMax, opts.RandomizationFactor),
	}
	go s.run()
	return s, nil
}

// ID is the socket id from the last CONNECT acknowledgement.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// Done is closed once the session has stopped for good.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close disconnects and stops reconnecting. When it returns the handler
// will not be called again.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = s.write(conn, SocketPacket{Type: SocketDisconnect, Namespace: s.opts.Namespace}.Encode())
		_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best effort close frame
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
	s.cancel()
	if conn != nil {
		_ = conn.Close() //nolint:errcheck // unblocks the reader
	}
	<-s.done
	return err
}

func (s *Session) emit(ev Event) {
	if s.handler != nil {
		s.handler(ev)
	}
}

func (s *Session) run() {
	defer close(s.done)
	attempt := 0
	for {
		if attempt > 0 {
			delay := s.backoff.duration(attempt)
			s.log.Debug().Msgf("reconnecting in %v (attempt %d)", delay, attempt)
			timer := time.NewTimer(delay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		connected, err := s.connectOnce(attempt)
		if s.ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrServerDisconnect) || errors.Is(err, ErrConnectRefused) {
			s.log.Debug().Msgf("push session ended: %v", err)
			return
		}
		if !s.opts.Reconnection {
			return
		}
		if connected {
			attempt = 0
		}
		attempt++
		if limit := s.opts.ReconnectionAttempts; limit > 0 && attempt > limit {
			s.emit(ReconnectFailed{Attempts: limit})
			return
		}
	}
}

// connectOnce runs a single connection from dial to loss. connected tells
// whether the namespace CONNECT was acknowledged on it.
func (s *Session) connectOnce(attempt int) (connected bool, err error) {
	dctx, cancel := context.WithTimeout(s.ctx, s.opts.HandshakeTimeout)
	conn, resp, err := s.opts.Dialer.DialContext(dctx, s.url, s.opts.Header)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close() //nolint:errcheck // handshake response
	}
	if err != nil {
		if s.ctx.Err() == nil {
			s.emit(ConnectError{Err: err})
		}
		return false, err
	}
	if !s.attach(conn) {
		_ = conn.Close() //nolint:errcheck // session closed while dialing
		return false, context.Canceled
	}
	defer s.detach(conn)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.Close() //nolint:errcheck // unblocks ReadMessage
		case <-stop:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout)) //nolint:errcheck // surfaced by ReadMessage
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return false, s.lost(false, err)
	}
	hs, err := ParseHandshake(frame)
	if err != nil {
		if s.ctx.Err() == nil {
			s.emit(ConnectError{Err: err})
		}
		return false, err
	}
	s.log.Debug().Msgf("engine open sid=%s pingInterval=%d pingTimeout=%d", hs.SID, hs.PingInterval, hs.PingTimeout)
	if attempt > 0 {
		s.emit(Reconnected{Attempt: attempt})
	}

	if err := s.write(conn, SocketPacket{Type: SocketConnect, Namespace: s.opts.Namespace}.Encode()); err != nil {
		return false, s.lost(false, err)
	}

	timeout := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout)) //nolint:errcheck // surfaced by ReadMessage
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return connected, s.lost(connected, err)
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case EnginePing:
			if err := s.write(conn, string(EnginePong)+string(frame[1:])); err != nil {
				return connected, s.lost(connected, err)
			}
		case EngineClose:
			return connected, s.lost(connected, errEngineClose)
		case EnginePong, EngineNoop:
		case EngineMessage:
			if done, err := s.handleMessage(string(frame[1:]), &connected); done {
				return connected, err
			}
		default:
			s.log.Debug().Msgf("ignoring engine packet %q", frame[0])
		}
	}
}

func (s *Session) handleMessage(body string, connected *bool) (bool, error) {
	p, err := DecodeSocketPacket(body)
	if err != nil {
		s.log.Warn().Msgf("dropping malformed packet: %v", err)
		return false, nil
	}
	if p.Namespace != s.opts.Namespace {
		s.log.Debug().Msgf("ignoring packet for namespace %s", p.Namespace)
		return false, nil
	}
	switch p.Type {
	case SocketConnect:
		var ack struct {
			SID string `json:"sid"`
		}
		if len(p.Data) > 0 {
			_ = json.Unmarshal(p.Data, &ack) //nolint:errcheck // sid is informational
		}
		s.mu.Lock()
		s.sid = ack.SID
		s.mu.Unlock()
		*connected = true
		s.emit(Connected{SID: ack.SID})
	case SocketConnectError:
		err := fmt.Errorf("%w: %s", ErrConnectRefused, connectErrorMessage(p.Data))
		s.emit(ConnectError{Err: err})
		return true, err
	case SocketDisconnect:
		s.emit(Disconnected{Reason: ReasonServerDisconnect})
		return true, ErrServerDisconnect
	case SocketEvent, SocketBinaryEvent:
		if p.Attachments > 0 {
			s.log.Warn().Msg("dropping binary event, attachments are not supported")
			return false, nil
		}
		name, args, err := p.EventArgs()
		if err != nil {
			s.log.Warn().Msgf("dropping event: %v", err)
			return false, nil
		}
		ev, err := DecodeEvent(name, args)
		if errors.Is(err, ErrUnknownEvent) {
			s.log.Debug().Msgf("ignoring event %q", name)
			return false, nil
		} else if err != nil {
			s.log.Warn().Msgf("dropping event: %v", err)
			return false, nil
		}
		s.emit(ev)
	default:
		s.log.Debug().Msgf("ignoring socket packet type %d", p.Type)
	}
	return false, nil
}

// lost reports the end of a connection and returns the error to hand back
// to run.
func (s *Session) lost(connected bool, err error) error {
	if s.ctx.Err() != nil {
		if connected {
			s.emit(Disconnected{Reason: ReasonClientDisconnect})
		}
		return s.ctx.Err()
	}
	if !connected {
		s.emit(ConnectError{Err: err})
		return err
	}
	s.emit(Disconnected{Reason: disconnectReason(err)})
	return err
}

func disconnectReason(err error) string {
	var ne net.Error
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return ReasonPingTimeout
	case errors.As(err, &ce), errors.Is(err, errEngineClose), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ReasonTransportClose
	default:
		return ReasonTransportError
	}
}

func (s *Session) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *Session) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close() //nolint:errcheck // already done with it
}

func (s *Session) write(conn *websocket.Conn, msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // surfaced by WriteMessage
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}
