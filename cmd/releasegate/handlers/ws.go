package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/initcodes20/releasegate/cmd/releasegate/service"
	"github.com/initcodes20/releasegate/common/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 30 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum message size allowed from peer (clients only send pongs)
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the admin panel host is fixed
		return true
	},
}

// CatalogStreamHandler streams the ordered catalog over websockets.
// Each connection holds one subscription: the current snapshot arrives
// on connect, then a fresh full snapshot after every mutation.
// Disconnecting releases the subscription.
type CatalogStreamHandler struct {
	catalog *service.CatalogService
	log     *logger.Logger
}

// NewCatalogStreamHandler creates a new catalog stream handler
func NewCatalogStreamHandler(catalog *service.CatalogService, log *logger.Logger) *CatalogStreamHandler {
	return &CatalogStreamHandler{
		catalog: catalog,
		log:     log,
	}
}

// Serve upgrades the connection and starts the read/write pumps
// GET /ws/catalog
func (h *CatalogStreamHandler) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return nil
	}

	sub, err := h.catalog.Subscribe(c.Request().Context())
	if err != nil {
		h.log.Error("catalog subscription failed", "error", err)
		conn.Close()
		return nil
	}

	h.log.Info("catalog subscriber connected", "remote", c.Request().RemoteAddr)

	client := &catalogClient{
		conn: conn,
		sub:  sub,
		log:  h.log,
	}

	go client.writePump()
	go client.readPump()

	return nil
}

// catalogClient couples a websocket connection to a catalog
// subscription
type catalogClient struct {
	conn *websocket.Conn
	sub  *service.Subscription
	log  *logger.Logger
}

// readPump detects disconnects and handles ping/pong. Clients never
// send data frames; the stream is server-push only.
func (c *catalogClient) readPump() {
	defer func() {
		c.sub.Unsubscribe()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump pushes catalog snapshots to the connection
func (c *catalogClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sub.Unsubscribe()
		c.conn.Close()
	}()

	for {
		select {
		case snapshot, ok := <-c.sub.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			payload, err := json.Marshal(snapshot)
			if err != nil {
				c.log.Error("snapshot marshal failed", "error", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
