package lock

import "sync"

// Feed is a multicast point for a stream of values.
//
// Publish delivers each value once to every current subscriber, in
// subscription order, on the publishing goroutine. Values are produced
// upstream exactly once regardless of how many subscribers there are, and
// subscribing never replays history; Latest exposes the most recent value
// instead.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   []feedSub[T]
	nextID uint64

	latest T
	has    bool
}

type feedSub[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (f *Feed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, feedSub[T]{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(id) })
	}
}

func (f *Feed[T]) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.id == id {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Publish records v as the latest value and hands it to every subscriber.
// Subscribers added or removed during delivery take effect for the next
// value.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	f.latest = v
	f.has = true
	subs := f.subs
	f.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Latest returns the last published value, if any.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.has
}

// Len returns the number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
