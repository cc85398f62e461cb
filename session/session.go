package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/roleplay-live/messages"
)

// State is the connection state of a Session
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Mode is the transport mode requested from the agent
type Mode int

const (
	ModeText Mode = iota
	ModeAudio
)

func (m Mode) String() string {
	if m == ModeAudio {
		return "audio"
	}
	return "text"
}

// EventKind tags events posted by socket goroutines and timers
type EventKind int

const (
	EventOpened EventKind = iota
	EventDialFailed
	EventMessage
	EventClosed
	EventReconnect
)

// Event is posted to the owner's loop and applied with Session.Handle
type Event struct {
	Kind       EventKind
	Generation uint64
	Conn       Conn
	Data       []byte
	Err        error
}

// UpdateKind tells the owner what a handled event meant
type UpdateKind int

const (
	UpdateNone UpdateKind = iota
	UpdateOpen
	UpdateMessage
	UpdateClosed
	UpdateConnecting
)

// Update is the result of handling an Event
type Update struct {
	Kind         UpdateKind
	Message      messages.Inbound
	Err          error
	Reconnecting bool // An automatic reconnect was scheduled
}

// Options configures a Session
type Options struct {
	ID             string // Generated when empty
	URL            func(id string, audio bool) string
	Dialer         Dialer
	ReconnectDelay time.Duration
	Hold           func() bool // Suppresses the automatic reconnect while true
	Post           func(Event) // Delivers events to the owner's loop
}

// Session owns the agent socket. All methods must be called from the owner's
// loop; socket goroutines and timers only post events back to it.
type Session struct {
	ID string

	url            func(id string, audio bool) string
	dialer         Dialer
	reconnectDelay time.Duration
	hold           func() bool
	post           func(Event)

	ctx    context.Context
	cancel context.CancelFunc

	state           State
	mode            Mode
	generation      uint64
	conn            *connection
	manualReconnect bool
	reconnectTimer  *time.Timer
	closed          bool
}

// NewID returns a fresh numeric session identifier
func NewID() string {
	return fmt.Sprint(uuid.New().ID())
}

// New creates a closed Session
func New(ctx context.Context, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = NewID()
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Hold == nil {
		opts.Hold = func() bool { return false }
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:             opts.ID,
		url:            opts.URL,
		dialer:         opts.Dialer,
		reconnectDelay: opts.ReconnectDelay,
		hold:           opts.Hold,
		post:           opts.Post,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// State returns the connection state
func (s *Session) State() State { return s.state }

// Mode returns the current or pending transport mode
func (s *Session) Mode() Mode { return s.mode }

// IsOpen reports whether sends are currently delivered
func (s *Session) IsOpen() bool { return s.state == StateOpen }

// ManualReconnect reports whether a mode switch is in flight
func (s *Session) ManualReconnect() bool { return s.manualReconnect }

// SetMode changes the mode used by the next connect without touching the socket
func (s *Session) SetMode(mode Mode) { s.mode = mode }

// Connect opens a socket in mode, replacing any current one.
func (s *Session) Connect(mode Mode) {
	if s.closed {
		return
	}
	s.stopReconnect()
	s.dropConn()

	s.generation++
	s.mode = mode
	s.state = StateConnecting
	gen := s.generation
	url := s.url(s.ID, mode == ModeAudio)

	log.Printf("🔌 [%s] Connecting in %s mode: %s", shortID(s.ID), mode, url)

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, dialTimeout)
		defer cancel()
		conn, err := s.dialer.Dial(ctx, url)
		if err != nil {
			s.post(Event{Kind: EventDialFailed, Generation: gen, Err: err})
			return
		}
		s.post(Event{Kind: EventOpened, Generation: gen, Conn: conn})
	}()
}

// SwitchMode reopens the socket in mode on the same session identifier. The
// automatic reconnect is suppressed until the new socket opens or fails.
func (s *Session) SwitchMode(mode Mode) {
	if s.closed {
		return
	}
	log.Printf("🔄 [%s] Switching to %s mode", shortID(s.ID), mode)
	s.manualReconnect = true
	s.Connect(mode)
}

// Send transmits env when the socket is open. Otherwise it is dropped.
func (s *Session) Send(env messages.Envelope) bool {
	if s.state != StateOpen || s.conn == nil {
		return false
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("❌ [%s] Failed to encode %s message: %v", shortID(s.ID), env.MimeType, err)
		return false
	}
	return s.conn.queue(data)
}

// Handle applies an event posted by this session's goroutines or timers.
// Events from replaced sockets are ignored.
func (s *Session) Handle(ev Event) Update {
	if ev.Generation != s.generation || s.closed {
		if ev.Kind == EventOpened && ev.Conn != nil {
			_ = ev.Conn.Close()
		}
		return Update{}
	}

	switch ev.Kind {
	case EventOpened:
		s.conn = newConnection(s.ID, ev.Generation, ev.Conn, s.post)
		s.conn.start()
		s.state = StateOpen
		s.manualReconnect = false
		s.stopReconnect()
		log.Printf("✅ [%s] Connected (%s mode)", shortID(s.ID), s.mode)
		return Update{Kind: UpdateOpen}

	case EventMessage:
		if s.state != StateOpen {
			return Update{}
		}
		msg, err := messages.DecodeInbound(ev.Data)
		if err != nil {
			log.Printf("⚠️ [%s] Ignoring message: %v", shortID(s.ID), err)
			return Update{}
		}
		return Update{Kind: UpdateMessage, Message: msg}

	case EventDialFailed, EventClosed:
		if s.state == StateClosed {
			return Update{}
		}
		s.dropConn()
		s.state = StateClosed
		s.manualReconnect = false
		log.Printf("🔌 [%s] Connection closed: %v", shortID(s.ID), ev.Err)
		return Update{Kind: UpdateClosed, Err: ev.Err, Reconnecting: s.scheduleReconnect()}

	case EventReconnect:
		s.reconnectTimer = nil
		if s.state != StateClosed || s.hold() || s.manualReconnect {
			return Update{}
		}
		log.Printf("🔁 [%s] Reconnecting...", shortID(s.ID))
		s.Connect(s.mode)
		return Update{Kind: UpdateConnecting}
	}
	return Update{}
}

// scheduleReconnect arms exactly one reconnect attempt unless suppressed
func (s *Session) scheduleReconnect() bool {
	if s.hold() || s.manualReconnect || s.reconnectTimer != nil {
		return false
	}
	gen := s.generation
	s.reconnectTimer = time.AfterFunc(s.reconnectDelay, func() {
		s.post(Event{Kind: EventReconnect, Generation: gen})
	})
	log.Printf("⏳ [%s] Reconnecting in %v", shortID(s.ID), s.reconnectDelay)
	return true
}

// ReconnectNow schedules the automatic reconnect if the socket is closed and
// nothing suppresses it. Used when a hold is released.
func (s *Session) ReconnectNow() bool {
	if s.closed || s.state != StateClosed {
		return false
	}
	return s.scheduleReconnect()
}

func (s *Session) stopReconnect() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) dropConn() {
	if s.conn != nil {
		s.conn.close()
		s.conn = nil
	}
}

// Close shuts the socket for good. No reconnect follows.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.stopReconnect()
	s.dropConn()
	s.generation++
	s.state = StateClosed
	s.manualReconnect = false
	s.cancel()
	log.Printf("🔌 [%s] Session closed", shortID(s.ID))
}
