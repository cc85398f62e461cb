package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/roleplay-live/messages"
)

// subscriber is one connected UI. All writes go through writePump.
type subscriber struct {
	conn      *websocket.Conn
	writeChan chan []byte
	closeChan chan struct{}
	once      sync.Once
	dropped   int
	mu        sync.Mutex
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn:      conn,
		writeChan: make(chan []byte, subscriberQueue),
		closeChan: make(chan struct{}),
	}
}

func (s *subscriber) writePump() {
	defer func() {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.conn.Close()
	}()

	for {
		select {
		case <-s.closeChan:
			return
		case data := <-s.writeChan:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// queue adds data to the write queue without blocking
func (s *subscriber) queue(data []byte) {
	select {
	case <-s.closeChan:
		return
	default:
	}
	select {
	case s.writeChan <- data:
	default:
		s.mu.Lock()
		s.dropped++
		if s.dropped%50 == 1 {
			log.Printf("⚠️ UI is not keeping up, dropped %d messages", s.dropped)
		}
		s.mu.Unlock()
	}
}

func (s *subscriber) send(msg *messages.ServerMessage) {
	data, err := msg.Encode()
	if err != nil {
		return
	}
	s.queue(data)
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closeChan) })
}
