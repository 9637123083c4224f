// Package session implements the server side of one chat connection.
//
// A Session reads one nickname frame, enters the room and then keeps reading
// message frames, handing each to the room for broadcast. Frames delivered by
// the room are queued and written one at a time, in delivery order. The first
// read or write error closes the session and removes it from the room.
//
// Every handler runs on the strand shared with the room, so the session state
// and the room registry are never touched concurrently.
package session

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/botaojia/chat/domain"
	"github.com/botaojia/chat/protocol"
	"github.com/botaojia/chat/reactor"
)

type State int

const (
	Connecting State = iota
	AwaitingNickname
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingNickname:
		return "awaiting nickname"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type Session struct {
	id       string
	stream   domain.Stream
	strand   *reactor.Strand
	room     domain.Room
	logger   *slog.Logger
	maxQueue int
	done     chan struct{}

	// owned by the strand
	state    State
	nickname string
	queue    []protocol.Frame
	// history frames at the front of queue; they do not count against maxQueue
	replayed  int
	replaying bool
}

type Option func(s *Session)

// WithMaxQueue caps the outbound queue. A session whose queue already holds n
// live frames when a new one arrives is disconnected. Frames replayed from the
// room history on entering are not counted. Zero keeps the queue unbounded.
func WithMaxQueue(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxQueue = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(stream domain.Stream, strand *reactor.Strand, room domain.Room, options ...Option) *Session {
	s := &Session{
		id:     uuid.New().String(),
		stream: stream,
		strand: strand,
		room:   room,
		logger: slog.Default(),
		done:   make(chan struct{}),
		state:  Connecting,
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With("sessionId", s.id, "remote", stream.RemoteAddr())
	return s
}

func (s *Session) ID() string { return s.id }

// State returns the current state. Call it on the strand.
func (s *Session) State() State { return s.state }

// Nickname returns the name recorded on entering the room. Call it on the strand.
func (s *Session) Nickname() string { return s.nickname }

// Done is closed once the session reached the Closed state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start arms the nickname read.
func (s *Session) Start() {
	s.strand.Post(func() {
		if s.state != Connecting {
			return
		}
		s.state = AwaitingNickname
		s.logger.Debug("session started")
		s.readNickname()
	})
}

// Close closes the underlying stream. Pending operations fail and drive the
// session through its regular error path.
func (s *Session) Close() error {
	return s.stream.Close()
}

// Deliver queues frame for writing. It is called by the room on the strand.
func (s *Session) Deliver(frame protocol.Frame) {
	if s.state == Closed {
		return
	}
	if s.replaying {
		s.replayed++
	} else if s.maxQueue > 0 && len(s.queue)-s.replayed >= s.maxQueue {
		s.logger.Warn("outbound queue overflow", "queued", len(s.queue))
		s.teardown()
		return
	}
	s.queue = append(s.queue, frame)
	if len(s.queue) == 1 {
		s.writeFront()
	}
}

func (s *Session) readNickname() {
	go func() {
		var f protocol.NicknameFrame
		err := s.stream.ReadFrame(f[:])
		s.strand.Post(func() { s.onNickname(f, err) })
	}()
}

func (s *Session) onNickname(f protocol.NicknameFrame, err error) {
	if s.state == Closed {
		return
	}
	if err != nil {
		s.logger.Debug("nickname read failed", "error", err)
		s.teardown()
		return
	}
	s.nickname = protocol.Nickname(f)
	s.state = Active
	s.replaying = true
	s.room.Enter(s, s.nickname)
	s.replaying = false
	s.readMessage()
}

func (s *Session) readMessage() {
	go func() {
		var f protocol.Frame
		err := s.stream.ReadFrame(f[:])
		s.strand.Post(func() { s.onMessage(f, err) })
	}()
}

func (s *Session) onMessage(f protocol.Frame, err error) {
	if s.state == Closed {
		return
	}
	if err != nil {
		s.logger.Debug("read failed", "error", err)
		s.teardown()
		return
	}
	s.room.Broadcast(f, s)
	s.readMessage()
}

func (s *Session) writeFront() {
	f := s.queue[0]
	go func() {
		err := s.stream.WriteFrame(f[:])
		s.strand.Post(func() { s.onWrite(err) })
	}()
}

func (s *Session) onWrite(err error) {
	if s.state == Closed {
		return
	}
	if err != nil {
		s.logger.Debug("write failed", "error", err)
		s.teardown()
		return
	}
	s.queue[0] = protocol.Frame{}
	s.queue = s.queue[1:]
	if s.replayed > 0 {
		s.replayed--
	}
	if len(s.queue) > 0 {
		s.writeFront()
	}
}

func (s *Session) teardown() {
	if s.state == Closed {
		return
	}
	entered := s.state == Active
	s.state = Closed
	if dropped := len(s.queue); dropped > 0 {
		s.logger.Debug("discarding queued frames", "queued", dropped)
	}
	s.queue = nil
	s.replayed = 0
	if err := s.stream.Close(); err != nil {
		s.logger.Debug("close failed", "error", err)
	}
	if entered {
		s.room.Leave(s)
	}
	close(s.done)
	s.logger.Info("session closed", "nickname", s.nickname)
}
