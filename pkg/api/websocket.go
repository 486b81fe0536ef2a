package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/ledger"
)

// Subscribable channels
const (
	ChannelSlots    = "slots"
	ChannelReceipts = "receipts"
	ChannelOrders   = "orders"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the router
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans committed-slot notifications out to subscribed connections.
// Clients attach and detach under the hub lock; Run only tears everything
// down on shutdown.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates an empty hub
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{log: logger, clients: make(map[*Client]struct{})}
}

// Run blocks until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Debugw("ws_client_connected", "client", c.id, "total", len(h.clients))
	return true
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Debugw("ws_client_disconnected", "client", c.id, "total", len(h.clients))
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToChannel sends data to every client subscribed to channel
func (h *Hub) BroadcastToChannel(channel string, data interface{}) {
	h.broadcast(channel, data, nil)
}

// BroadcastOrder sends an order update, honouring per-client seller filters
func (h *Hub) BroadcastOrder(update OrderUpdate) {
	h.broadcast(ChannelOrders, update, func(c *Client) bool {
		return c.wantsSeller(update.Attributes["seller"])
	})
}

func (h *Hub) broadcast(channel string, data interface{}, match func(*Client) bool) {
	message, err := json.Marshal(data)
	if err != nil {
		h.log.Warnw("ws_marshal_failed", "channel", channel, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(channel) || (match != nil && !match(c)) {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.log.Debugw("ws_client_lagging", "client", c.id, "channel", channel)
		}
	}
}

// Client is one WebSocket connection and its subscription state
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	mu       sync.RWMutex
	channels map[string]bool
	seller   *ledger.Pubkey // nil = every seller
}

func (c *Client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *Client) wantsSeller(seller string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seller == nil || c.seller.String() == seller
}

// apply handles one subscription request and returns the acknowledgement
func (c *Client) apply(req WSSubscribeRequest) WSAck {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch req.Op {
	case "subscribe":
		var seller *ledger.Pubkey
		if req.Seller != "" {
			key, err := ledger.PubkeyFromBase58(req.Seller)
			if err != nil {
				return WSAck{Type: "error", Error: "invalid seller: " + err.Error()}
			}
			seller = &key
		}
		var added []string
		for _, ch := range req.Channels {
			if !validChannel(ch) {
				return WSAck{Type: "error", Error: "unknown channel " + ch}
			}
			c.channels[ch] = true
			added = append(added, ch)
		}
		if seller != nil {
			c.seller = seller
		}
		return WSAck{Type: "subscribed", Channels: added}

	case "unsubscribe":
		for _, ch := range req.Channels {
			delete(c.channels, ch)
			if ch == ChannelOrders {
				c.seller = nil
			}
		}
		return WSAck{Type: "unsubscribed", Channels: req.Channels}

	default:
		return WSAck{Type: "error", Error: "unknown op " + req.Op}
	}
}

func validChannel(channel string) bool {
	switch channel {
	case ChannelSlots, ChannelReceipts, ChannelOrders:
		return true
	}
	return false
}

// reply queues msg for this client only
func (c *Client) reply(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugw("ws_read_failed", "client", c.id, "err", err)
			}
			return
		}
		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(WSAck{Type: "error", Error: "malformed request"})
			continue
		}
		c.reply(c.apply(req))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleWebSocket upgrades the request and starts the client pumps
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		id:       conn.RemoteAddr().String(),
		channels: make(map[string]bool),
	}
	if !s.hub.attach(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
