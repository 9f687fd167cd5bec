package reactive

import "sync"

// Subscription receives values published to the Observable it was created by.
type Subscription[T any] struct {
	c         chan T
	container *Observable[T]
	once      sync.Once
}

// Cancel removes the subscription from the container and closes its channel.
// Not calling this method may result in memory leak. Calling it more than once is safe.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.container.delete(s)
		close(s.c)
	})
}

// Channel returns channel that can be used to read published values.
func (s *Subscription[T]) Channel() <-chan T {
	return s.c
}

// Observable creates a container for subscribers.
// This works in single producer multiple consumer pattern.
type Observable[T any] struct {
	mux         sync.RWMutex
	subscribers map[*Subscription[T]]struct{}
	size        int
}

// New creates Observable container that holds channels for all subscribers.
// size is the buffer size of each channel.
func New[T any](size int) *Observable[T] {
	return &Observable[T]{
		subscribers: make(map[*Subscription[T]]struct{}),
		size:        size,
	}
}

// Subscribe subscribes to the container.
func (o *Observable[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		c:         make(chan T, o.size),
		container: o,
	}
	o.mux.Lock()
	defer o.mux.Unlock()
	o.subscribers[s] = struct{}{}
	return s
}

// Publish publishes value to all subscribers.
// Subscribers with a full buffer miss the value, the number of those is returned.
func (o *Observable[T]) Publish(v T) (dropped int) {
	o.mux.RLock()
	defer o.mux.RUnlock()
	for s := range o.subscribers {
		select {
		case s.c <- v:
		default:
			dropped++
		}
	}
	return dropped
}

// Len returns the number of active subscriptions.
func (o *Observable[T]) Len() int {
	o.mux.RLock()
	defer o.mux.RUnlock()
	return len(o.subscribers)
}

func (o *Observable[T]) delete(s *Subscription[T]) {
	o.mux.Lock()
	defer o.mux.Unlock()
	delete(o.subscribers, s)
}
