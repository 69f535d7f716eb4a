// Package stream broadcasts simulation output (fills, top-of-book) to
// websocket subscribers while a run is in progress.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"latsim/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 64 * 1024
	defaultSendBuf      = 256
	defaultPublishBuf   = 4096
	maxConsecutiveDrops = 50
)

// Topics clients can subscribe to.
const (
	TopicFills = "fills"
	TopicBook  = "book"
)

// FillMsg is the wire payload for one fill.
type FillMsg struct {
	Price   model.Price    `json:"price"`
	Qty     model.Quantity `json:"qty"`
	BuyID   model.OrderID  `json:"buyId"`
	SellID  model.OrderID  `json:"sellId"`
	VTime   model.Time     `json:"vtime"`
	Passive string         `json:"passive"`
	Seq     uint64         `json:"seq"`
}

// BookMsg is the wire payload for a top-of-book update.
type BookMsg struct {
	Top   *model.TopOfBook `json:"top"`
	VTime model.Time       `json:"vtime"`
	Seq   uint64           `json:"seq"`
}

type publishMsg struct {
	Topic string
	Data  []byte
}

type subscription struct {
	client *Client
	topic  string
}

// Hub manages clients, subscriptions and publishes.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan publishMsg

	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}

	sendBuf int

	// simple metrics
	publishDrops uint64

	log logrus.FieldLogger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subscribed map[string]struct{}

	// consecutive drops counter: if it grows too large we evict the client
	drops int
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan publishMsg, defaultPublishBuf),
		clients:     make(map[*Client]struct{}),
		topics:      make(map[string]map[*Client]struct{}),
		sendBuf:     defaultSendBuf,
		log:         log,
	}
}

// OnFill implements sim.Observer: every fill goes out on the fills topic.
func (h *Hub) OnFill(fill model.Fill) {
	msg := FillMsg{
		Price:   fill.Price,
		Qty:     fill.Quantity,
		BuyID:   fill.BuyOrderID,
		SellID:  fill.SellOrderID,
		VTime:   fill.Time,
		Passive: fill.Passive.String(),
		Seq:     nextSeq(TopicFills),
	}
	h.publishJSON(TopicFills, msg)
}

// PublishTopOfBook pushes a book snapshot on the book topic.
func (h *Hub) PublishTopOfBook(now model.Time, top *model.TopOfBook) {
	h.publishJSON(TopicBook, BookMsg{Top: top, VTime: now, Seq: nextSeq(TopicBook)})
}

func (h *Hub) publishJSON(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Warn("marshal stream payload")
		return
	}
	select {
	case h.publish <- publishMsg{Topic: topic, Data: data}:
	default:
		atomic.AddUint64(&h.publishDrops, 1)
	}
}

// Run runs the hub event loop. Call as: go hub.Run(ctx).
// The hub stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("stream hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case sub := <-h.subscribe:
			subs := h.topics[sub.topic]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.topics[sub.topic] = subs
			}
			subs[sub.client] = struct{}{}
			sub.client.subscribed[sub.topic] = struct{}{}

		case sub := <-h.unsubscribe:
			if subs := h.topics[sub.topic]; subs != nil {
				delete(subs, sub.client)
				if len(subs) == 0 {
					delete(h.topics, sub.topic)
				}
			}
			delete(sub.client.subscribed, sub.topic)

		case p := <-h.publish:
			for c := range h.topics[p.Topic] {
				select {
				case c.send <- p.Data:
					c.drops = 0
				default:
					atomic.AddUint64(&h.publishDrops, 1)
					c.drops++
					if c.drops > maxConsecutiveDrops {
						h.log.WithField("drops", c.drops).Warn("evicting slow client")
						h.drop(c)
					}
				}
			}

		case <-ctx.Done():
			h.log.Info("stream hub shutting down")
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

// drop detaches a client from every topic and closes its send channel.
// Only the hub loop may call it.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	for t := range c.subscribed {
		if subs := h.topics[t]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, t)
			}
		}
	}
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client subscribed to the
// fills topic; clients switch topics with subscribe/unsubscribe messages.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		subscribed: map[string]struct{}{TopicFills: {}},
	}

	h.register <- client
	h.subscribe <- subscription{client: client, topic: TopicFills}

	go client.writePump()
	go client.readPump()
}

// readPump turns client messages into subscribe/unsubscribe requests.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.hub.log.WithError(err).Debug("ws read error")
			}
			return
		}

		var cmd struct {
			Type  string `json:"type"`  // "subscribe" | "unsubscribe"
			Topic string `json:"topic"` // "fills" | "book"
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.log.WithError(err).Debug("invalid client msg")
			continue
		}

		switch cmd.Type {
		case "subscribe":
			if cmd.Topic != "" {
				c.hub.subscribe <- subscription{client: c, topic: cmd.Topic}
			}
		case "unsubscribe":
			if cmd.Topic != "" {
				c.hub.unsubscribe <- subscription{client: c, topic: cmd.Topic}
			}
		}
	}
}

// writePump serializes all writes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
