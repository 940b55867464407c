package mount

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	hubWriteTimeout = 5 * time.Second
	hubPingInterval = 30 * time.Second
	hubReadTimeout  = 2 * hubPingInterval
	hubSendBuffer   = 8
)

// Hub is a mount point that keeps the latest markup and pushes every update
// to subscribed websocket clients as a text message. New clients receive the
// current markup right after connecting. A client that cannot keep up is
// disconnected.
type Hub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	markup  string
	clients map[*hubClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type hubClient struct {
	conn *websocket.Conn
	send chan string
	once sync.Once
	done chan struct{}
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a Hub. Only same-origin browsers may connect.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}
}

// sameOrigin allows requests without an Origin header (non-browser clients)
// and requests whose Origin host matches the Host header.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.TrimSpace(r.Host))
	originHost := strings.ToLower(strings.TrimSpace(u.Host))
	return host == originHost
}

// SetInnerHTML stores markup and queues it for every client.
func (h *Hub) SetInnerHTML(markup string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.markup = markup
	for c := range h.clients {
		select {
		case c.send <- markup:
		default:
			h.logger.Warn("Websocket client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

// Markup returns the latest markup.
func (h *Hub) Markup() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.markup
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams markup until
// the client goes away or the Hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugf("Websocket upgrade failed: %v", err)
		return
	}

	c := &hubClient{
		conn: conn,
		send: make(chan string, hubSendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if h.markup != "" {
		c.send <- h.markup
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.Debugf("Websocket client connected from %s", r.RemoteAddr)
	go h.readLoop(c)
	h.writeLoop(c)
}

// readLoop discards client messages and closes the client when the
// connection fails or stops answering pings.
func (h *Hub) readLoop(c *hubClient) {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(hubReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	defer h.wg.Done()
	defer h.remove(c)
	defer c.conn.Close()

	ticker := time.NewTicker(hubPingInterval)
	defer ticker.Stop()

	for {
		select {
		case markup := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(markup)); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(hubWriteTimeout),
			)
			return
		}
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close disconnects every client and rejects new ones. It waits for the
// client loops to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}
