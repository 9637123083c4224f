// Package reactor runs completion handlers on a fixed pool of workers.
//
// Blocking I/O happens on its own goroutines; once an operation completes, its
// handler is posted to the reactor and executed by one of the workers. Handlers
// that share state are posted through a Strand, which guarantees they never
// run concurrently with each other, whichever worker picks them up.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const queueSize = 1024

type Reactor struct {
	workers int
	tasks   chan func()
	quit    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

type Option func(r *Reactor)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reactor) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a reactor served by the given number of workers.
func New(workers int, options ...Option) (*Reactor, error) {
	if workers < 1 {
		return nil, fmt.Errorf("reactor.New: workers (%d) must be greater than 0", workers)
	}
	r := &Reactor{
		workers: workers,
		tasks:   make(chan func(), queueSize),
		quit:    make(chan struct{}),
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(r)
	}
	return r, nil
}

// Post queues fn for execution by some worker. Handlers posted after the
// reactor stopped are dropped.
func (r *Reactor) Post(fn func()) {
	select {
	case <-r.quit:
		return
	default:
	}
	select {
	case r.tasks <- fn:
	case <-r.quit:
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has returned. Workers stay alive while idle; on cancellation they run the
// handlers already queued and exit.
func (r *Reactor) Run(ctx context.Context) {
	wg := sync.WaitGroup{}
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.work(ctx, id)
		}(i)
	}
	<-ctx.Done()
	r.once.Do(func() { close(r.quit) })
	wg.Wait()
}

func (r *Reactor) work(ctx context.Context, id int) {
	r.logger.Debug("worker started", "worker", id)
	defer r.logger.Debug("worker stopped", "worker", id)
	for {
		select {
		case fn := <-r.tasks:
			fn()
		case <-ctx.Done():
			for {
				select {
				case fn := <-r.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Strand is a serialization domain on top of a reactor. Handlers posted to the
// same strand run one at a time, in the order they were posted.
type Strand struct {
	reactor *Reactor
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (r *Reactor) NewStrand() *Strand {
	return &Strand{reactor: r}
}

// Post queues fn on the strand.
func (s *Strand) Post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.reactor.Post(s.drain)
}

// Call runs fn on the strand and waits for it to return.
func (s *Strand) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	s.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}
