package marketsync

import "sync"

// Feed is a broadcast stream that holds its latest value. Subscribers get the
// latest value replayed on subscribe and then every subsequent publish. Each
// subscriber channel is conflated: a slow consumer only ever observes the
// most recent snapshot, it is never blocked on and never blocks the
// publisher.
type Feed[T any] struct {
	mu       sync.Mutex
	latest   T
	hasValue bool
	subs     map[int]chan T
	nextID   int
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]chan T)}
}

// Publish stores v as the latest value and offers it to every subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = v
	f.hasValue = true
	for _, ch := range f.subs {
		offer(ch, v)
	}
}

// Subscribe registers a new listener. The returned cancel func detaches the
// listener and closes its channel; it does not affect other listeners or any
// upstream subscription.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan T, 1)
	if f.hasValue {
		ch <- f.latest
	}
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Latest returns the most recently published value, if any.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.hasValue
}

// offer replaces the channel's buffered value with v without ever blocking.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
