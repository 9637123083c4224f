// Package history keeps the most recent room messages.
package history

import (
	"fmt"

	"github.com/botaojia/chat/protocol"
)

// DefaultSize is the number of messages replayed to a new participant.
const DefaultSize = 100

// Ring accumulates at most max frames. When it is full, every push drops the
// oldest frame. Ring is not safe for concurrent use.
type Ring struct {
	data  []protocol.Frame
	start int
	size  int
}

// NewRing builds an empty ring holding at most max frames.
func NewRing(max int) (*Ring, error) {
	if max <= 0 {
		return nil, fmt.Errorf("history.NewRing: max (%d) must be greater than 0", max)
	}
	return &Ring{data: make([]protocol.Frame, max)}, nil
}

// Len returns the number of stored frames.
func (r *Ring) Len() int {
	return r.size
}

// Push appends f, evicting the oldest frame if the ring is full.
func (r *Ring) Push(f protocol.Frame) {
	if r.size < len(r.data) {
		r.data[(r.start+r.size)%len(r.data)] = f
		r.size++
		return
	}
	r.data[r.start] = f
	r.start = (r.start + 1) % len(r.data)
}

// Each calls fn for every stored frame, oldest first.
func (r *Ring) Each(fn func(protocol.Frame)) {
	for i := 0; i < r.size; i++ {
		fn(r.data[(r.start+i)%len(r.data)])
	}
}
