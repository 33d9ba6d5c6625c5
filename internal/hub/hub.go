// Package hub fans render commands out to a room's watch pages over
// websockets and hands the pages' own messages (clock reports, player
// events) back to the room.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingPeriod   = 50 * time.Second
	writeWait    = 10 * time.Second
	sendBuffered = 256
)

type eventKind int

const (
	join eventKind = iota
	leave
	broadcast
)

// All hub traffic goes through one channel so a joining client's initial
// messages are ordered against broadcasts.
type event struct {
	kind   eventKind
	client *Client
	msgs   [][]byte
}

// Handler receives a message read from a client.
type Handler func(c *Client, msg []byte)

// Hub manages WebSocket clients and broadcasts
type Hub struct {
	clients   map[*Client]bool
	events    chan event
	quit      chan struct{}
	closeOnce sync.Once
	count     atomic.Int32
	onMessage Handler
	onLeave   func(c *Client)
}

func NewHub(onMessage Handler) *Hub {
	if onMessage == nil {
		onMessage = func(*Client, []byte) {}
	}
	return &Hub{
		clients:   make(map[*Client]bool),
		events:    make(chan event, sendBuffered),
		quit:      make(chan struct{}),
		onMessage: onMessage,
	}
}

// OnLeave sets a callback run when a client's connection ends. Call it
// before any client starts.
func (h *Hub) OnLeave(fn func(c *Client)) { h.onLeave = fn }

// Run serves the hub until Close.
func (h *Hub) Run() {
	defer func() {
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.count.Store(0)
	}()
	for {
		select {
		case <-h.quit:
			return
		case ev := <-h.events:
			switch ev.kind {
			case join:
				h.clients[ev.client] = true
				for _, m := range ev.msgs {
					h.deliver(ev.client, m)
				}
			case leave:
				if _, ok := h.clients[ev.client]; ok {
					delete(h.clients, ev.client)
					close(ev.client.send)
				}
			case broadcast:
				for c := range h.clients {
					for _, m := range ev.msgs {
						h.deliver(c, m)
					}
				}
			}
			h.count.Store(int32(len(h.clients)))
		}
	}
}

// deliver drops clients that cannot keep up.
func (h *Hub) deliver(c *Client, msg []byte) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) post(ev event) {
	select {
	case h.events <- ev:
	case <-h.quit:
	}
}

func (h *Hub) Broadcast(b []byte) {
	h.post(event{kind: broadcast, msgs: [][]byte{b}})
}

// RegisterClient adds c; initial is sent to c before any later broadcast.
func (h *Hub) RegisterClient(c *Client, initial ...[]byte) {
	h.post(event{kind: join, client: c, msgs: initial})
}

func (h *Hub) UnregisterClient(c *Client) { h.post(event{kind: leave, client: c}) }

// Len is the number of connected clients.
func (h *Hub) Len() int { return int(h.count.Load()) }

// Close stops Run and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// Client wraps a websocket connection for the Hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffered)}
}

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		if c.hub.onLeave != nil {
			c.hub.onLeave(c)
		}
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.hub.onMessage(c, message)
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
				// Hub closed the channel.
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
