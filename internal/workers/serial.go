package workers

import "sync"

// Serial runs functions one at a time in submission order on a single
// goroutine. It stands in for a UI thread.
type Serial struct {
	mu     sync.Mutex
	queue  chan func()
	closed bool
	done   chan struct{}
}

// NewSerial starts the delivery goroutine.
func NewSerial() *Serial {
	s := &Serial{queue: make(chan func(), 64), done: make(chan struct{})}
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer close(s.done)
	for fn := range s.queue {
		fn()
	}
}

// Go queues fn. Calls after Close are dropped.
func (s *Serial) Go(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue <- fn
}

// Close drains queued functions and stops the goroutine.
func (s *Serial) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

// Inline runs functions on the calling goroutine.
type Inline struct{}

func (Inline) Go(fn func()) { fn() }
