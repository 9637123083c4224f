package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaojia/chat/hub"
	"github.com/botaojia/chat/protocol"
	"github.com/botaojia/chat/reactor"
)

var fixedTime = time.Date(2024, time.May, 6, 7, 8, 9, 0, time.Local)

type server struct {
	strand   *reactor.Strand
	room     *hub.Room
	listener *Listener
}

func startServer(t *testing.T) *server {
	t.Helper()
	r, err := reactor.New(4)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	room, err := hub.New("0", hub.WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)

	strand := r.NewStrand()
	l := NewListener(ln, room, strand)
	l.Start()

	t.Cleanup(func() {
		l.Close()
		cancel()
		<-done
	})
	return &server{strand: strand, room: room, listener: l}
}

func (s *server) participants(t *testing.T) int {
	var n int
	require.NoError(t, s.strand.Call(context.Background(), func() { n = s.room.Len() }))
	return n
}

func dial(t *testing.T, s *server, nickname string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	f, err := protocol.NewNicknameFrame(nickname)
	require.NoError(t, err)
	_, err = conn.Write(f[:])
	require.NoError(t, err)
	return conn
}

func send(t *testing.T, conn net.Conn, text string) {
	t.Helper()
	f, err := protocol.NewFrame(text)
	require.NoError(t, err)
	_, err = conn.Write(f[:])
	require.NoError(t, err)
}

func read(t *testing.T, conn net.Conn) string {
	t.Helper()
	var f protocol.Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := io.ReadFull(conn, f[:])
	require.NoError(t, err)
	return f.Text()
}

func TestListener_TwoClients(t *testing.T) {
	s := startServer(t)
	alice := dial(t, s, "alice")
	bob := dial(t, s, "bob")
	require.Eventually(t, func() bool { return s.participants(t) == 2 }, 2*time.Second, 5*time.Millisecond)

	send(t, alice, "hi")
	want := "[2024-05-06 07:08:09] alice: hi"
	assert.Equal(t, want, read(t, alice))
	assert.Equal(t, want, read(t, bob))

	// abrupt disconnect
	if tc, ok := bob.(*net.TCPConn); ok {
		tc.SetLinger(0)
	}
	bob.Close()
	require.Eventually(t, func() bool { return s.participants(t) == 1 }, 2*time.Second, 5*time.Millisecond)

	send(t, alice, "still here?")
	assert.Equal(t, "[2024-05-06 07:08:09] alice: still here?", read(t, alice))
}

func TestListener_ReplayToLateJoiner(t *testing.T) {
	s := startServer(t)
	alice := dial(t, s, "alice")
	require.Eventually(t, func() bool { return s.participants(t) == 1 }, 2*time.Second, 5*time.Millisecond)

	for _, m := range []string{"one", "two"} {
		send(t, alice, m)
		read(t, alice)
	}

	carol := dial(t, s, "carol")
	assert.Equal(t, "[2024-05-06 07:08:09] alice: one", read(t, carol))
	assert.Equal(t, "[2024-05-06 07:08:09] alice: two", read(t, carol))

	send(t, carol, "hello")
	assert.Equal(t, "[2024-05-06 07:08:09] carol: hello", read(t, carol))
	assert.Equal(t, "[2024-05-06 07:08:09] carol: hello", read(t, alice))
}

func TestListener_SilentDisconnectNeverEnters(t *testing.T) {
	s := startServer(t)
	conn, err := net.Dial("tcp", s.listener.Addr().String())
	require.NoError(t, err)
	conn.Close()

	// the listener keeps accepting
	dial(t, s, "dave")
	require.Eventually(t, func() bool { return s.participants(t) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestListener_Close(t *testing.T) {
	s := startServer(t)
	require.NoError(t, s.listener.Close())
	select {
	case <-s.listener.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop")
	}
}

// erringListener fails every Accept until it is closed.
type erringListener struct {
	mu      sync.Mutex
	accepts int
	closed  bool
}

func (l *erringListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accepts++
	if l.closed {
		return nil, net.ErrClosed
	}
	return nil, errors.New("too many open files")
}

func (l *erringListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *erringListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (l *erringListener) getAccepts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepts
}

func TestListener_AcceptErrorsBackOff(t *testing.T) {
	r, err := reactor.New(1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	room, err := hub.New("0")
	require.NoError(t, err)
	ln := &erringListener{}
	l := NewListener(ln, room, r.NewStrand())
	l.Start()

	// 5+10+20+40+80ms: about five retries fit in 200ms
	time.Sleep(200 * time.Millisecond)
	accepts := ln.getAccepts()
	assert.GreaterOrEqual(t, accepts, 2)
	assert.Less(t, accepts, 10)

	require.NoError(t, l.Close())
	select {
	case <-l.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("accept loop did not stop")
	}
}

func TestStream(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	stream := NewStream(server)
	defer stream.Close()

	go func() {
		// two partial writes make one frame
		client.Write([]byte("hel"))
		client.Write([]byte("lo"))
	}()
	buf := make([]byte, 5)
	require.NoError(t, stream.ReadFrame(buf))
	assert.Equal(t, "hello", string(buf))
	assert.NotEmpty(t, stream.RemoteAddr())

	go func() {
		io.ReadFull(client, make([]byte, 3))
	}()
	assert.NoError(t, stream.WriteFrame([]byte("abc")))
}
