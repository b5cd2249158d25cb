package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vhrealtime/service/identity"
	"vhrealtime/tools/errs"
)

// Client represents one accepted and authenticated WebSocket connection.
// Outbound frames go through Send onto a bounded queue consumed by a single writer
// goroutine; the handler goroutine is the only reader.
type Client struct {
	connID string
	who    identity.Identity
	ws     *websocket.Conn

	send chan []byte
	done chan struct{} // closed when the client is shutting down
	gone chan struct{} // closed when the writer has exited

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	writeWait    time.Duration
	pingInterval time.Duration
}

func newClient(connID string, who identity.Identity, ws *websocket.Conn, o Options) *Client {
	return &Client{
		connID:       connID,
		who:          who,
		ws:           ws,
		send:         make(chan []byte, o.SendQueueSize),
		done:         make(chan struct{}),
		gone:         make(chan struct{}),
		writeWait:    o.WriteWait,
		pingInterval: o.PingInterval,
	}
}

func (c *Client) ID() string                  { return c.connID }
func (c *Client) Identity() identity.Identity { return c.who }

// Send never blocks. A closed client or a full queue loses this delivery only.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errs.ErrDeliveryFailure.WrapMsg("connection closed")
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errs.ErrDeliveryFailure.WrapMsg("send queue full")
	}
}

// Close asks the writer to send a close frame and drop the socket. Only the first
// call picks the code.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		close(c.done)
	})
}

// wait blocks until the writer has released the socket.
func (c *Client) wait() { <-c.gone }

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.gone)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			if c.closeCode != websocket.CloseAbnormalClosure {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(c.closeCode, c.closeReason), time.Now().Add(c.writeWait))
			}
			return
		}
	}
}

// flush writes what is already queued, so a close does not swallow the last frames.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
