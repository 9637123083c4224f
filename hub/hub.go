package hub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/botaojia/chat/domain"
	"github.com/botaojia/chat/history"
	"github.com/botaojia/chat/protocol"
)

// Room is the broadcast domain of one listening port. It keeps the registry of
// active participants, their nicknames and the recent message history.
//
// Room is not safe for concurrent use. Every call must run inside the strand
// that owns the room.
type Room struct {
	port    string
	clients map[domain.Participant]string
	history *history.Ring
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(r *Room) error

func New(port string, options ...Option) (*Room, error) {
	r := &Room{
		port:    port,
		clients: make(map[domain.Participant]string),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(r); err != nil {
			return nil, err
		}
	}
	if r.history == nil {
		r.history, _ = history.NewRing(history.DefaultSize)
	}
	r.logger = r.logger.With("port", port)
	return r, nil
}

// WithHistorySize overrides the number of messages replayed to new participants.
func WithHistorySize(size int) Option {
	return func(r *Room) error {
		ring, err := history.NewRing(size)
		if err != nil {
			return fmt.Errorf("hub.WithHistorySize: %w", err)
		}
		r.history = ring
		return nil
	}
}

// WithClock replaces the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Room) error {
		if now == nil {
			return fmt.Errorf("hub.WithClock: clock is nil")
		}
		r.now = now
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Room) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// Enter registers p under nickname and replays the history to p only.
func (r *Room) Enter(p domain.Participant, nickname string) {
	r.clients[p] = nickname
	r.logger.Info("client joined", "nickname", nickname, "clients", len(r.clients))
	r.history.Each(p.Deliver)
}

// Leave unregisters p. Leaving twice, or without entering, is a no-op.
func (r *Room) Leave(p domain.Participant) {
	nickname, ok := r.clients[p]
	if !ok {
		return
	}
	delete(r.clients, p)
	r.logger.Info("client left", "nickname", nickname, "clients", len(r.clients))
}

// Broadcast prefixes frame with the current time and the sender's nickname,
// records the result in the history and delivers it to every participant,
// the sender included. Recipient order is unspecified.
func (r *Room) Broadcast(frame protocol.Frame, sender domain.Participant) {
	formatted, err := protocol.Compose(protocol.Timestamp(r.now()), r.Nickname(sender), frame.Text())
	if err != nil {
		r.logger.Warn("message truncated", "nickname", r.Nickname(sender), "error", err)
	}
	r.history.Push(formatted)
	for p := range r.clients {
		p.Deliver(formatted)
	}
}

// Nickname returns the name p entered with, or "" if p is not in the room.
func (r *Room) Nickname(p domain.Participant) string {
	return r.clients[p]
}

func (r *Room) Len() int {
	return len(r.clients)
}

func (r *Room) Stats() domain.Stats {
	return domain.Stats{
		Port:         r.port,
		Participants: len(r.clients),
		History:      r.history.Len(),
	}
}
