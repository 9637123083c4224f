package tcp

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/botaojia/chat/domain"
	"github.com/botaojia/chat/reactor"
	"github.com/botaojia/chat/session"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Listener accepts connections for one room. Each accepted connection becomes
// a session bound to that room; the listener re-arms after every accept,
// successful or not, and stops only once the underlying listener is closed.
// Consecutive accept errors re-arm after a doubling delay capped at one
// second.
type Listener struct {
	ln       net.Listener
	room     domain.Room
	strand   *reactor.Strand
	logger   *slog.Logger
	sessions []session.Option
	done     chan struct{}

	tempDelay time.Duration // strand only
}

type ListenerOption func(l *Listener)

func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSessionOptions sets the options applied to every accepted session.
func WithSessionOptions(options ...session.Option) ListenerOption {
	return func(l *Listener) {
		l.sessions = append(l.sessions, options...)
	}
}

func NewListener(ln net.Listener, room domain.Room, strand *reactor.Strand, options ...ListenerOption) *Listener {
	l := &Listener{
		ln:     ln,
		room:   room,
		strand: strand,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, option := range options {
		option(l)
	}
	l.logger = l.logger.With("addr", ln.Addr().String())
	return l
}

// Start arms the first accept.
func (l *Listener) Start() {
	l.logger.Info("listening")
	l.accept()
}

// Close stops accepting. Sessions already running are not affected.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Done is closed once the accept loop has stopped.
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) accept() {
	go func() {
		conn, err := l.ln.Accept()
		l.strand.Post(func() { l.onAccept(conn, err) })
	}()
}

func (l *Listener) onAccept(conn net.Conn, err error) {
	switch {
	case err == nil:
		l.tempDelay = 0
		l.logger.Debug("connection accepted", "remote", conn.RemoteAddr().String())
		session.New(NewStream(conn), l.strand, l.room, append([]session.Option{session.WithLogger(l.logger)}, l.sessions...)...).Start()
	case errors.Is(err, net.ErrClosed):
		l.logger.Info("listener closed")
		close(l.done)
		return
	default:
		if l.tempDelay == 0 {
			l.tempDelay = minAcceptDelay
		} else {
			l.tempDelay = min(2*l.tempDelay, maxAcceptDelay)
		}
		l.logger.Warn("accept failed", "error", err, "retryIn", l.tempDelay)
		time.AfterFunc(l.tempDelay, l.accept)
		return
	}
	l.accept()
}
