package gateway

import "sync"

// Broadcaster fans auth events out to subscribers. Emit never blocks: each
// subscription queues events and delivers them in order from its own goroutine.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
}

func (b *Broadcaster) Subscribe() Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]*subscription)
	}
	id := b.nextID
	b.nextID++
	sub := &subscription{
		out:    make(chan AuthEvent),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	sub.release = func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	b.subs[id] = sub
	go sub.pump()
	return sub
}

func (b *Broadcaster) Emit(ev AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.push(ev)
	}
}

type subscription struct {
	out     chan AuthEvent
	notify  chan struct{}
	done    chan struct{}
	release func()
	once    sync.Once

	mu    sync.Mutex
	queue []AuthEvent
}

func (s *subscription) Events() <-chan AuthEvent {
	return s.out
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.release()
		close(s.done)
	})
}

func (s *subscription) push(ev AuthEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
