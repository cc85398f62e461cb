package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	dialTimeout     = 10 * time.Second
	readLimit       = 4 * 1024 * 1024
)

// Conn is the socket surface a Session drives
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens agent sockets
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the agent with gorilla/websocket
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial opens a websocket connection to url
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial agent: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// connection is one live socket plus its pumps. Every event it posts carries
// its generation so the owner can discard events from replaced sockets.
type connection struct {
	id        string
	gen       uint64
	conn      Conn
	writeChan chan []byte
	closeChan chan struct{}
	post      func(Event)
}

func newConnection(id string, gen uint64, conn Conn, post func(Event)) *connection {
	return &connection{
		id:        id,
		gen:       gen,
		conn:      conn,
		writeChan: make(chan []byte, writeBufferSize),
		closeChan: make(chan struct{}),
		post:      post,
	}
}

func (c *connection) start() {
	go c.writePump()
	go c.readPump()
}

// readPump forwards inbound frames in arrival order until the socket fails
func (c *connection) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.post(Event{Kind: EventClosed, Generation: c.gen, Err: err})
			return
		}
		c.post(Event{Kind: EventMessage, Generation: c.gen, Data: data})
	}
}

// writePump handles all outgoing messages in a single goroutine
func (c *connection) writePump() {
	defer func() {
		// Send close message before exiting
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.closeChan:
			return
		case msg := <-c.writeChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("❌ [%s] Write failed: %v", shortID(c.id), err)
				return
			}
		}
	}
}

// queue adds a message to the write queue (non-blocking)
func (c *connection) queue(msg []byte) bool {
	select {
	case c.writeChan <- msg:
		return true
	default:
		log.Printf("⚠️ [%s] Write channel full, dropping message", shortID(c.id))
		return false
	}
}

func (c *connection) close() {
	close(c.closeChan)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
