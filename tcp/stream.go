// Package tcp carries chat frames over TCP connections and accepts new ones.
package tcp

import (
	"io"
	"net"
)

// Stream reads and writes whole frames on a net.Conn.
type Stream struct {
	conn net.Conn
}

func NewStream(conn net.Conn) *Stream {
	return &Stream{conn: conn}
}

func (s *Stream) ReadFrame(p []byte) error {
	_, err := io.ReadFull(s.conn, p)
	return err
}

func (s *Stream) WriteFrame(p []byte) error {
	_, err := s.conn.Write(p)
	return err
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

func (s *Stream) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
