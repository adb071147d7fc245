// Package gateway streams a chart surface to browser clients over websocket
// and serves the REST control API of the chart session.
package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"candleview/internal/metrics"
	"candleview/internal/surface"

	"github.com/gorilla/websocket"
)

// SnapshotFunc rebuilds current chart state. It calls emit with the
// snapshot commands while holding the lock that orders them against the
// hub's sink, so no command is broadcast while emit runs.
type SnapshotFunc func(emit func(cmds []surface.Command))

// Hub fans surface commands out to websocket clients. It is a compositor:
//   - Broadcaster: envelope construction, sequencing and fan-out
//   - ReplayBuffer: recent envelopes for reconnect catch-up
//   - ConfigStore: persisted overlay config + config_update broadcasts
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	snapshot SnapshotFunc
	onResize func(width, height int)

	metrics *metrics.Metrics

	Replay      *ReplayBuffer
	Broadcaster *Broadcaster
	ConfigStore *ConfigStore
}

// NewHub returns a hub with no clients. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	h := &Hub{
		clients: make(map[*Client]bool),
		metrics: m,
		Replay:  NewReplayBuffer(2048),
	}
	h.Broadcaster = NewBroadcaster(h)
	h.ConfigStore = NewConfigStore(h, nil)
	return h
}

// Sink returns the surface sink feeding this hub.
func (h *Hub) Sink() surface.Sink {
	return h.Broadcaster.Broadcast
}

// SetSnapshot installs the function that rebuilds current chart state for
// clients that connect late or fall too far behind.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// OnResize installs the handler for viewport changes reported by clients.
func (h *Hub) OnResize(fn func(width, height int)) {
	h.mu.Lock()
	h.onResize = fn
	h.mu.Unlock()
}

// Resize forwards a viewport change to the installed handler.
func (h *Hub) Resize(width, height int) bool {
	h.mu.RLock()
	fn := h.onResize
	h.mu.RUnlock()
	if fn == nil {
		return false
	}
	fn(width, height)
	return true
}

// HandleWSRequest registers an upgraded connection. A client reconnecting
// with lastSeq > 0 is caught up from the replay buffer when possible and
// sent a full snapshot otherwise.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64) {
	client := newClient(h, conn)

	conn.EnableWriteCompression(true)

	count := h.attach(client, lastSeq)
	h.setClientGauge(count)

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// attach registers c and queues its initial state in one step, inside the
// snapshot callback. Every command broadcast after that carries a higher
// seq than the snapshot and is queued behind it.
func (h *Hub) attach(c *Client, lastSeq int64) int {
	count := 0
	h.withSnapshot(func(cmds []surface.Command) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.clients[c] = true
		count = len(h.clients)

		if lastSeq > 0 {
			if missed, ok := h.Replay.Since(lastSeq); ok && len(missed) < cap(c.send) {
				h.queueLocked(c, missed...)
				return
			}
		}
		h.queueLocked(c, h.snapshotEnvelopeLocked(cmds))
	})
	return count
}

// resync queues a fresh snapshot for a registered client.
func (h *Hub) resync(c *Client) {
	h.withSnapshot(func(cmds []surface.Command) {
		h.mu.RLock()
		defer h.mu.RUnlock()
		if h.clients[c] {
			h.queueLocked(c, h.snapshotEnvelopeLocked(cmds))
		}
	})
}

// withSnapshot runs fn with the current snapshot. fn runs exactly once,
// with nil commands when no snapshot source is installed.
func (h *Hub) withSnapshot(fn func(cmds []surface.Command)) {
	h.mu.RLock()
	snap := h.snapshot
	h.mu.RUnlock()

	called := false
	if snap != nil {
		snap(func(cmds []surface.Command) {
			if !called {
				called = true
				fn(cmds)
			}
		})
	}
	if !called {
		fn(nil)
	}
}

// RemoveClient unregisters c and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.setClientGauge(count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast command.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// snapshotEnvelopeLocked builds {"type":"snapshot","seq":N,"cmds":[...]}.
// Callers hold h.mu.
func (h *Hub) snapshotEnvelopeLocked(cmds []surface.Command) []byte {
	if cmds == nil {
		cmds = []surface.Command{}
	}
	env, _ := json.Marshal(map[string]interface{}{
		"type": "snapshot",
		"seq":  h.seq,
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		"cmds": cmds,
	})
	return env
}

// sendTo queues envelopes for one client if it is still registered.
func (h *Hub) sendTo(c *Client, envelopes ...[]byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c] {
		h.queueLocked(c, envelopes...)
	}
}

func (h *Hub) queueLocked(c *Client, envelopes ...[]byte) {
	for _, env := range envelopes {
		select {
		case c.send <- env:
		default:
			h.countDrop()
		}
	}
}

// sendAll queues an envelope for every client, dropping it for clients
// whose buffer is full.
func (h *Hub) sendAll(envelope []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			h.countDrop()
		}
	}
}

func (h *Hub) countDrop() {
	if h.metrics != nil {
		h.metrics.CommandDrops.Inc()
	}
}

func (h *Hub) setClientGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}
