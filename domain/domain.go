package domain

import "github.com/botaojia/chat/protocol"

// Participant is a live sink for room messages. Rooms compare participants by
// identity, so implementations are expected to be pointers.
type Participant interface {
	Deliver(frame protocol.Frame)
}

// Room is what a connection needs from the broadcast domain it belongs to.
// Implementations are not safe for concurrent use; callers serialize access.
type Room interface {
	Enter(p Participant, nickname string)
	Leave(p Participant)
	Broadcast(frame protocol.Frame, sender Participant)
}

// Stream moves whole frames over a transport. ReadFrame fills p completely or
// fails; WriteFrame writes p completely or fails. Close unblocks pending calls.
type Stream interface {
	ReadFrame(p []byte) error
	WriteFrame(p []byte) error
	Close() error
	RemoteAddr() string
}

type Stats struct {
	Port         string `json:"port"`
	Participants int    `json:"participants"`
	History      int    `json:"history"`
}
