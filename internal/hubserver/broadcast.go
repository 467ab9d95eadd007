package hubserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/agentchattr/agentchattr/internal/metrics"
)

// sendBufferSize is how many outgoing frames a slow connection may queue
// before spec.md §5's backpressure policy kicks in.
const sendBufferSize = 256

// writeTimeout bounds every individual WebSocket write (spec.md §5 "All
// HTTP/MCP probes carry an explicit timeout" generalizes to all network
// writes on the hub side).
const writeTimeout = 5 * time.Second

// criticalFrames never get dropped for a slow client; exceeding the send
// buffer for one of these closes the connection instead (spec.md §4.5
// "Broadcast", §5 "Backpressure").
var criticalFrames = map[FrameType]bool{
	FrameMessage: true,
	FrameDelete:  true,
}

// conn is one subscribed browser (or MCP SSE-style) WebSocket client. A
// single emitter goroutine serializes writes per connection, matching
// spec.md §4.5's "single synchronous emitter" requirement.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	forced    atomic.Bool
}

func newConn(id string, ws *websocket.Conn) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// enqueue attempts to deliver frame. Non-critical frames are dropped
// silently (and counted) when the buffer is full; critical frames force
// the connection closed so the client reconnects and resyncs instead of
// silently missing state (spec.md §5 "Backpressure").
func (c *conn) enqueue(frameType FrameType, data []byte) {
	select {
	case c.send <- data:
		return
	case <-c.closed:
		return
	default:
	}

	if criticalFrames[frameType] {
		c.forced.Store(true)
		c.close()
		return
	}
	metrics.WSDroppedEventsTotal.WithLabelValues(string(frameType)).Inc()
}

// writePump drains c.send until ctx is cancelled or the connection is
// closed, reporting close code 4003 (reload) when force-closed for
// backpressure.
func (c *conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			if c.forced.Load() {
				_ = c.ws.Close(websocket.StatusCode(4003), "slow consumer, reload")
			}
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.close()
				return
			}
			metrics.WSMessagesTotal.Inc()
		}
	}
}

// broadcaster fans server frames out to every registered connection.
type broadcaster struct {
	mu    sync.Mutex
	conns map[string]*conn
	log   *slog.Logger
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{conns: map[string]*conn{}, log: logger}
}

func (b *broadcaster) register(c *conn) {
	b.mu.Lock()
	b.conns[c.id] = c
	b.mu.Unlock()
	metrics.WSConnectionsActive.Inc()
}

func (b *broadcaster) unregister(c *conn) {
	b.mu.Lock()
	_, ok := b.conns[c.id]
	delete(b.conns, c.id)
	b.mu.Unlock()
	if ok {
		metrics.WSConnectionsActive.Dec()
	}
}

// broadcast delivers frame to every connection. Marshaling happens once
// and the encoded bytes are shared across connections.
func (b *broadcaster) broadcast(frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		b.log.Error("failed to marshal server frame", "type", frame.Type, "error", err)
		return
	}

	b.mu.Lock()
	targets := make([]*conn, 0, len(b.conns))
	for _, c := range b.conns {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.enqueue(frame.Type, data)
	}
}

// sendTo delivers frame to a single connection only, used for per-client
// validation errors (spec.md §7 "ignored with a single system message to
// the offending connection").
func (b *broadcaster) sendTo(c *conn, frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.enqueue(frame.Type, data)
}
