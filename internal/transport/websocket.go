// Package transport carries relay frames over WebSocket. Each accepted
// connection gets a numeric handle; inbound traffic is funneled into a single
// event channel consumed by the serving goroutine, and outbound frames go
// through a per-connection writer pump so one slow peer never stalls another.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ballancemmo/relay/internal/logging"
)

// EventType discriminates transport events.
type EventType int

const (
	// EventConnected fires once per accepted connection, before any message.
	EventConnected EventType = iota
	// EventMessage carries one inbound binary frame.
	EventMessage
	// EventClosed fires once when the connection goes away for any reason.
	EventClosed
)

// Event is delivered on the server's event channel.
type Event struct {
	Type    EventType
	Handle  uint32
	Payload []byte
	Addr    string
}

// ErrUnknownHandle is returned when sending to a connection that is gone.
var ErrUnknownHandle = errors.New("transport: unknown handle")

const (
	writeWait       = 10 * time.Second
	eventQueueDepth = 1024
	sendQueueDepth  = 256
	pongWaitSlack   = 3
)

// Options configure the WebSocket server.
type Options struct {
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	Logger          *logging.Logger
}

type conn struct {
	handle uint32
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}

	rttNanos int64
	pingSent int64

	closeOnce sync.Once
}

// Server accepts WebSocket connections and multiplexes their traffic onto
// one event channel.
type Server struct {
	opts     Options
	log      *logging.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conns      map[uint32]*conn
	nextHandle uint32
	closed     bool

	events chan Event
	http   *http.Server
}

// NewServer constructs a transport server from the supplied options.
func NewServer(opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &Server{
		opts: opts,
		log:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:  make(map[uint32]*conn),
		events: make(chan Event, eventQueueDepth),
	}
}

// Events returns the channel carrying connect, message and close events.
func (s *Server) Events() <-chan Event { return s.events }

// Handler exposes the upgrade endpoint; useful for tests and embedding.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

// ListenAndServe blocks serving the upgrade endpoint on addr.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveWS)
	s.mu.Lock()
	s.http = &http.Server{Addr: addr, Handler: mux}
	srv := s.http
	s.mu.Unlock()
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and closes every live one.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.http
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.closeConn(c, websocket.CloseGoingAway, "server shutting down")
	}
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed || (s.opts.MaxClients > 0 && len(s.conns) >= s.opts.MaxClients) {
		s.mu.Unlock()
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	c := &conn{
		ws:   ws,
		send: make(chan []byte, sendQueueDepth),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.nextHandle++
	c.handle = s.nextHandle
	s.conns[c.handle] = c
	s.mu.Unlock()

	s.events <- Event{Type: EventConnected, Handle: c.handle, Addr: r.RemoteAddr}

	go s.writePump(c)
	go s.readPump(c, r.RemoteAddr)
}

func (s *Server) readPump(c *conn, addr string) {
	defer func() {
		s.unregister(c)
		s.events <- Event{Type: EventClosed, Handle: c.handle, Addr: addr}
	}()
	if s.opts.MaxPayloadBytes > 0 {
		c.ws.SetReadLimit(s.opts.MaxPayloadBytes)
	}
	pongWait := s.opts.PingInterval * pongWaitSlack
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		//1.- Pong arrival both refreshes the liveness deadline and samples RTT.
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if sent := atomic.LoadInt64(&c.pingSent); sent != 0 {
			atomic.StoreInt64(&c.rttNanos, time.Now().UnixNano()-sent)
		}
		return nil
	})
	for {
		kind, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		s.events <- Event{Type: EventMessage, Handle: c.handle, Payload: payload, Addr: addr}
	}
}

func (s *Server) writePump(c *conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			atomic.StoreInt64(&c.pingSent, time.Now().UnixNano())
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send queues a frame for the connection. Reliable sends block until queued;
// unreliable sends are dropped when the queue is full. Sends to closed
// handles are silent no-ops apart from the returned error.
func (s *Server) Send(handle uint32, payload []byte, reliable bool) error {
	s.mu.Lock()
	c, ok := s.conns[handle]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}
	if reliable {
		select {
		case c.send <- payload:
			return nil
		case <-c.done:
			return ErrUnknownHandle
		}
	}
	select {
	case c.send <- payload:
	default:
		//1.- Position traffic is superseded every tick; dropping is safe.
	}
	return nil
}

// Close tears down one connection, sending a close frame carrying the reason
// code and text first. Unknown handles are ignored.
func (s *Server) Close(handle uint32, code int, reason string) {
	s.mu.Lock()
	c, ok := s.conns[handle]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.closeConn(c, code, reason)
}

func (s *Server) closeConn(c *conn, code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
		//1.- Closing the socket unblocks the read pump, which unregisters.
		_ = c.ws.Close()
	})
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.handle)
	s.mu.Unlock()
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// RTT reports the last measured round-trip time for the handle; zero when no
// pong has been observed yet or the handle is unknown.
func (s *Server) RTT(handle uint32) time.Duration {
	s.mu.Lock()
	c, ok := s.conns[handle]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&c.rttNanos))
}
