package services

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 54 * time.Second
	feedSendBuffer = 64
)

// FeedClient is one dashboard connected to the live prediction feed. The feed
// is push only; inbound frames are read solely to track pongs and close.
type FeedClient struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *FeedHub
	mu     sync.Mutex
	closed bool
}

// FeedHub fans recorded predictions out to every connected dashboard. Run owns
// the client set.
type FeedHub struct {
	clients    map[*FeedClient]bool
	broadcast  chan []byte
	register   chan *FeedClient
	unregister chan *FeedClient
	count      chan chan int
	done       chan struct{}
	log        *logrus.Entry
}

func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients:    make(map[*FeedClient]bool),
		broadcast:  make(chan []byte, feedSendBuffer),
		register:   make(chan *FeedClient),
		unregister: make(chan *FeedClient),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		log:        logrus.WithField("component", "feed"),
	}
}

func (h *FeedHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.Close()
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("clients", len(h.clients)).Debug("feed client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.log.WithField("clients", len(h.clients)).Debug("feed client disconnected")
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow reader, drop it rather than stall the hub
					delete(h.clients, client)
					client.Close()
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Publish never blocks the caller; when the hub is backed up the message is
// dropped.
func (h *FeedHub) Publish(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.log.Warn("feed backlog full, dropping message")
		return false
	}
}

// Clients reports the number of connected clients, 0 once the hub stopped.
func (h *FeedHub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Serve registers conn and blocks until the client goes away.
func (h *FeedHub) Serve(conn *websocket.Conn) {
	client := &FeedClient{
		conn: conn,
		send: make(chan []byte, feedSendBuffer),
		hub:  h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

func (c *FeedClient) writePump() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *FeedClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("feed read failed")
			}
			return
		}
	}
}

// Close closes send exactly once; writePump then sends the close frame and
// releases the connection.
func (c *FeedClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
