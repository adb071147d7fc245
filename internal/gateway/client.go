package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan []byte, 256), hub: h}
}

// inbound is any message a browser chart sends.
type inbound struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`
	Ping   int64  `json:"ping"`
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued envelopes into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inbound
		if json.Unmarshal(msg, &in) != nil {
			continue
		}
		c.handle(in)
	}
}

func (c *Client) handle(in inbound) {
	switch in.Type {
	case "resize":
		if in.Width < 0 || in.Height < 0 {
			c.sendError("resize: negative dimensions")
			return
		}
		c.hub.Resize(in.Width, in.Height)

	case "replay":
		if in.From <= 0 || in.To < in.From {
			c.sendError("replay: invalid range")
			return
		}
		c.hub.sendTo(c, c.hub.Replay.Range(in.From, in.To)...)

	case "snapshot":
		c.hub.resync(c)

	case "ping":
		pong, _ := json.Marshal(map[string]interface{}{
			"type":      "pong",
			"ping":      in.Ping,
			"server_ts": time.Now().UnixMilli(),
		})
		c.hub.sendTo(c, pong)
	}
}

func (c *Client) sendError(msg string) {
	env, _ := json.Marshal(map[string]string{"type": "error", "error": msg})
	c.hub.sendTo(c, env)
}
