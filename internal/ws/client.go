package ws

import (
	"time"

	"stonepot/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one websocket subscriber watching a single game. The feed is
// one-way: settlement events go out, inbound frames are ignored except
// for keepalive.
type Client struct {
	UserID int64
	GameID int64
	Conn   *websocket.Conn
	Send   chan []byte

	hub  *Hub
	done chan struct{}
}

func NewClient(userID, gameID int64, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID: userID,
		GameID: gameID,
		Conn:   conn,
		Send:   make(chan []byte, 32),
		hub:    hub,
		done:   make(chan struct{}),
	}
}

func (c *Client) Run() {
	c.hub.register(c)
	go c.writePump()
	c.readPump()
}

//read
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.Conn.Close()
		close(c.done)
	}()

	c.Conn.SetReadLimit(1024)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// inbound content is discarded; the read loop only exists to
		// service pongs and detect the peer going away
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws write failed", "user_id", c.UserID, "error", err)
				return
			}

		case <-c.done:
			return

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
