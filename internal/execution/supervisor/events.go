package supervisor

import (
	"sync"
	"time"
)

// broker fans events out to subscribers. Every subscriber has its own
// unbounded queue, so publishing never blocks and each subscriber sees
// the events in publish order.
type broker struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func newBroker() *broker {
	return &broker{
		subs: make(map[*subscription]struct{}),
	}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	sub := &subscription{
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()

		sub.close()
	}

	return sub.out, cancel
}

// drain waits until every subscriber has received the events published
// so far, or until timeout. It reports whether all queues are empty.
func (b *broker) drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		if b.idle() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func (b *broker) idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if !sub.idle() {
			return false
		}
	}

	return true
}

func (b *broker) publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		sub.push(evt)
	}
}

type subscription struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool

	// sending is set while an event is handed to the subscriber
	sending bool

	out  chan Event
	done chan struct{}
}

func (s *subscription) push(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.queue = append(s.queue, evt)
	s.cond.Signal()
}

func (s *subscription) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed || (len(s.queue) == 0 && !s.sending)
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.queue = nil
	close(s.done)
	s.cond.Signal()
}

func (s *subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}

		if s.closed {
			s.mu.Unlock()
			return
		}

		evt := s.queue[0]
		s.queue = s.queue[1:]
		s.sending = true
		s.mu.Unlock()

		select {
		case s.out <- evt:
		case <-s.done:
			return
		}

		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}
}
