package gateway

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"candleview/internal/surface"
)

// Broadcaster sequences surface commands and fans them out.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast wraps cmd in {"type":"command","seq":N,"ts":"...","cmd":{...}}
// and queues it for every client. The surface calls this with its own lock
// held, so sequence numbers follow the order mutations were applied.
func (b *Broadcaster) Broadcast(cmd surface.Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		log.Printf("[gateway] WARNING: encode %s command: %v", cmd.Op, err)
		return
	}

	b.hub.mu.Lock()
	b.hub.seq++
	seq := b.hub.seq
	b.hub.mu.Unlock()

	buf := buildEnvelope(data, time.Now().UTC(), seq)
	b.hub.Replay.Push(seq, buf)

	if b.hub.metrics != nil {
		b.hub.metrics.CommandsTotal.WithLabelValues(string(cmd.Op)).Inc()
	}
	b.hub.sendAll(buf)
}

// buildEnvelope hand-crafts the command envelope around pre-encoded JSON.
func buildEnvelope(cmd []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(cmd)+96)
	buf = append(buf, `{"type":"command","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","cmd":`...)
	buf = append(buf, cmd...)
	buf = append(buf, '}')
	return buf
}
