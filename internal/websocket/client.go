package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	// outboundBuffer bounds how many delivery events a slow browser tab can
	// fall behind before the hub starts dropping messages for it.
	outboundBuffer = 16
	keepAliveEvery = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one browser tab subscribed to the live event stream.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, outboundBuffer),
	}
}

// Run attaches the client to the hub and services the connection until the
// peer goes away. The stream is server-to-client only, so the read side
// exists solely to notice the close.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub unregistered us and closed the channel.
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
