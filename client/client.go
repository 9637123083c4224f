// Package client implements the console side of the chat: it announces a
// nickname, queues outgoing message frames and prints every frame the server
// sends back.
package client

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/botaojia/chat/domain"
	"github.com/botaojia/chat/protocol"
	"github.com/botaojia/chat/reactor"
)

// Client owns one connection to the server. Outgoing frames are written one at
// a time in the order Write was called; the nickname frame always goes first.
// The connection is closed on the first read or write error and never
// re-established.
type Client struct {
	nickname protocol.NicknameFrame
	stream   domain.Stream
	strand   *reactor.Strand
	out      io.Writer
	logger   *slog.Logger
	done     chan struct{}

	// owned by the strand
	queue   [][]byte
	started bool
	closing bool
	closed  bool
}

type Option func(c *Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client printing received frames to out.
func New(nickname protocol.NicknameFrame, stream domain.Stream, strand *reactor.Strand, out io.Writer, options ...Option) *Client {
	c := &Client{
		nickname: nickname,
		stream:   stream,
		strand:   strand,
		out:      out,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(c)
	}
	c.logger = c.logger.With("remote", stream.RemoteAddr())
	return c
}

// Start sends the nickname and begins reading replies.
func (c *Client) Start() {
	c.strand.Post(func() {
		if c.started || c.closed {
			return
		}
		c.started = true
		c.enqueue(c.nickname[:])
		c.read()
	})
}

// Write queues frame for sending.
func (c *Client) Write(frame protocol.Frame) {
	c.strand.Post(func() {
		if c.closed || c.closing {
			return
		}
		c.enqueue(frame[:])
	})
}

// Close closes the connection after the frames already queued are written.
func (c *Client) Close() {
	c.strand.Post(func() {
		if len(c.queue) == 0 {
			c.close()
			return
		}
		c.closing = true
	})
}

// Done is closed once the connection is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) enqueue(p []byte) {
	c.queue = append(c.queue, p)
	if len(c.queue) == 1 {
		c.writeFront()
	}
}

func (c *Client) writeFront() {
	p := c.queue[0]
	go func() {
		err := c.stream.WriteFrame(p)
		c.strand.Post(func() { c.onWrite(err) })
	}()
}

func (c *Client) onWrite(err error) {
	if c.closed {
		return
	}
	if err != nil {
		c.logger.Debug("write failed", "error", err)
		c.close()
		return
	}
	c.queue[0] = nil
	c.queue = c.queue[1:]
	switch {
	case len(c.queue) > 0:
		c.writeFront()
	case c.closing:
		c.close()
	}
}

func (c *Client) read() {
	go func() {
		var f protocol.Frame
		err := c.stream.ReadFrame(f[:])
		c.strand.Post(func() { c.onRead(f, err) })
	}()
}

func (c *Client) onRead(f protocol.Frame, err error) {
	if c.closed {
		return
	}
	if err != nil {
		c.logger.Debug("read failed", "error", err)
		c.close()
		return
	}
	fmt.Fprintln(c.out, f.Text())
	c.read()
}

func (c *Client) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.queue = nil
	if err := c.stream.Close(); err != nil {
		c.logger.Debug("close failed", "error", err)
	}
	close(c.done)
}
