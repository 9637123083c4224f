// Package protocol defines the fixed-size frames exchanged between chat
// clients and the relay server.
//
// Every frame on the wire has exactly the size of its type: a nickname frame is
// MaxNickname bytes, a message frame is MaxPacketSize bytes. Text is written
// left-aligned and padded with NUL bytes. There is no length prefix and no
// delimiter, so both ends must agree on the constants below.
package protocol

import (
	"bytes"
	"errors"
	"time"
	"unicode/utf8"
)

const (
	// MaxPacketSize is the size of a message frame.
	MaxPacketSize = 512
	// MaxNickname is the size of a nickname frame.
	MaxNickname = 32
	// Padding is reserved for the server-side timestamp prefix.
	Padding = 24
	// MaxMessageText is the longest text a client may put into a message frame.
	// The server prefixes every message with a timestamp and the sender's
	// nickname before re-framing it.
	MaxMessageText = MaxPacketSize - MaxNickname - Padding

	// Separator terminates every nickname recorded by the server.
	Separator = ": "

	timestampLayout = "[2006-01-02 15:04:05] "
)

// ErrFrameTooLong is returned when text does not fit into the target frame.
var ErrFrameTooLong = errors.New("protocol: frame too long")

// Frame is one message frame.
type Frame [MaxPacketSize]byte

// NicknameFrame is the first frame sent by a client.
type NicknameFrame [MaxNickname]byte

// NewFrame puts text into a message frame.
func NewFrame(text string) (Frame, error) {
	var f Frame
	if len(text) > MaxMessageText {
		return f, ErrFrameTooLong
	}
	copy(f[:], text)
	return f, nil
}

// TruncateFrame puts text into a message frame, cutting it to MaxMessageText
// bytes without splitting a UTF-8 sequence.
func TruncateFrame(text string) Frame {
	var f Frame
	copy(f[:], cut(text, MaxMessageText))
	return f
}

// Text returns the frame content up to the first NUL byte.
func (f Frame) Text() string {
	return text(f[:])
}

// Compose concatenates parts into a single message frame. When the result does
// not fit, the frame holds the first MaxPacketSize bytes and ErrFrameTooLong is
// returned along with it.
func Compose(parts ...string) (Frame, error) {
	var f Frame
	n, total := 0, 0
	for _, p := range parts {
		n += copy(f[n:], p)
		total += len(p)
	}
	if total > len(f) {
		return f, ErrFrameTooLong
	}
	return f, nil
}

// NewNicknameFrame puts name into a nickname frame.
func NewNicknameFrame(name string) (NicknameFrame, error) {
	var f NicknameFrame
	if len(name) > MaxNickname {
		return f, ErrFrameTooLong
	}
	copy(f[:], name)
	return f, nil
}

// Text returns the frame content up to the first NUL byte.
func (f NicknameFrame) Text() string {
	return text(f[:])
}

// Nickname returns the display prefix for the name carried by f. Names longer
// than MaxNickname-2 bytes are cut so that the prefix including Separator
// never exceeds MaxNickname bytes.
func Nickname(f NicknameFrame) string {
	name := f.Text()
	if len(name) > MaxNickname-len(Separator) {
		name = name[:MaxNickname-len(Separator)]
	}
	return name + Separator
}

// Timestamp renders t as the prefix the server puts before every message.
func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

func text(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
