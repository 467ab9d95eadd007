package hubserver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_NonCriticalFrameDroppedWhenFull(t *testing.T) {
	c := newConn("test", nil)
	for i := 0; i < sendBufferSize; i++ {
		c.send <- []byte("x")
	}

	c.enqueue(FrameStatus, []byte(`{"type":"status"}`))

	select {
	case <-c.closed:
		t.Fatal("non-critical overflow should not force-close the connection")
	default:
	}
}

func TestConn_CriticalFrameForcesClose(t *testing.T) {
	c := newConn("test", nil)
	for i := 0; i < sendBufferSize; i++ {
		c.send <- []byte("x")
	}

	c.enqueue(FrameMessage, []byte(`{"type":"message"}`))

	select {
	case <-c.closed:
		assert.True(t, c.forced.Load())
	case <-time.After(time.Second):
		t.Fatal("expected forced close for full buffer on a critical frame")
	}
}

func TestBroadcaster_DeliversToRegisteredConn(t *testing.T) {
	b := newBroadcaster(nil)
	c := newConn("a", nil)
	b.register(c)
	defer b.unregister(c)

	b.broadcast(ServerFrame{Type: FrameStatus, Agent: "codex"})

	select {
	case data := <-c.send:
		var frame ServerFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, FrameStatus, frame.Type)
		assert.Equal(t, "codex", frame.Agent)
	case <-time.After(time.Second):
		t.Fatal("expected a delivered frame")
	}
}

func TestBroadcaster_UnregisterStopsDelivery(t *testing.T) {
	b := newBroadcaster(nil)
	c := newConn("a", nil)
	b.register(c)
	b.unregister(c)

	b.broadcast(ServerFrame{Type: FrameStatus})

	select {
	case <-c.send:
		t.Fatal("unregistered connection should not receive frames")
	default:
	}
}
