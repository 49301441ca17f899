package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/chaz8081/hrkit/internal/sensor"
)

// Client is the companion side of the relay. It pushes readings to the host
// only while a connection is up; Send never queues.
type Client struct {
	url   string
	codec *Codec

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for the websocket URL of a host listener,
// e.g. ws://host:8765/relay.
func NewClient(url string, codec *Codec) *Client {
	return &Client{url: url, codec: codec}
}

// Connect dials the host unless already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("relay: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	// The host never sends data; CloseRead handles control frames and
	// reports when the link goes away.
	done := conn.CloseRead(context.Background())
	go func() {
		<-done.Done()
		c.drop(conn)
	}()

	slog.Info("[RELAY] connected to host", "url", c.url)
	return nil
}

// Reachable reports whether a host connection is up.
func (c *Client) Reachable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send pushes one reading. It returns ErrUnreachable without touching the
// network when no host is connected.
func (c *Client) Send(ctx context.Context, hr sensor.HeartRate) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrUnreachable
	}

	frame, err := c.codec.Encode(hr)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		c.drop(conn)
		return fmt.Errorf("relay: send: %w", err)
	}
	return nil
}

func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	slog.Warn("[RELAY] host connection lost", "url", c.url)
}

// Close closes the host connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}
