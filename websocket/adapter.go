package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/botaojia/chat/domain"
	"github.com/botaojia/chat/protocol"
	"github.com/botaojia/chat/reactor"
	"github.com/botaojia/chat/session"
)

const writeWait = 10 * time.Second

// ErrFrameSize is returned when a WebSocket message does not have the exact
// size of the expected frame.
var ErrFrameSize = errors.New("websocket: unexpected frame size")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  protocol.MaxPacketSize,
	WriteBufferSize: protocol.MaxPacketSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream carries one frame per binary WebSocket message.
type Stream struct {
	ws *websocket.Conn
}

func NewStream(ws *websocket.Conn) *Stream {
	ws.SetReadLimit(protocol.MaxPacketSize)
	return &Stream{ws: ws}
}

func (s *Stream) ReadFrame(p []byte) error {
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return err
	}
	if len(data) != len(p) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(data), len(p))
	}
	copy(p, data)
	return nil
}

func (s *Stream) WriteFrame(p []byte) error {
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.BinaryMessage, p)
}

func (s *Stream) Close() error {
	return s.ws.Close()
}

func (s *Stream) RemoteAddr() string {
	return s.ws.RemoteAddr().String()
}

// RoomLookup picks the room a WebSocket request joins.
type RoomLookup func(r *http.Request) (domain.Room, bool)

type handler struct {
	logger   *slog.Logger
	sessions []session.Option
}

type HandlerOption func(h *handler)

// WithLogger sets the logger used for upgrade failures and handed to every
// session the handler starts.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSessionOptions sets the options applied to every upgraded session.
func WithSessionOptions(options ...session.Option) HandlerOption {
	return func(h *handler) {
		h.sessions = append(h.sessions, options...)
	}
}

// Handler upgrades requests to WebSocket and runs a session for each of them
// in the room returned by lookup.
func Handler(lookup RoomLookup, strand *reactor.Strand, options ...HandlerOption) http.HandlerFunc {
	h := &handler{logger: slog.Default()}
	for _, option := range options {
		option(h)
	}
	sessions := append([]session.Option{session.WithLogger(h.logger)}, h.sessions...)

	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := lookup(r)
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("upgrade error", "remote", r.RemoteAddr, "error", err)
			return
		}

		session.New(NewStream(conn), strand, room, sessions...).Start()
	}
}
