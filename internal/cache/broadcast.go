package cache

import (
	"sync"
)

// watcherBuffer is the per-watcher channel capacity. A watcher that
// falls this far behind blocks the publisher until it catches up or
// stops.
const watcherBuffer = 256

// Broadcaster fans changes out to in-process watchers. Backends without
// a native change feed use it to implement Watch.
type Broadcaster struct {
	mu       sync.Mutex
	watchers map[string]map[*chanWatcher]struct{}
	closed   bool
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{watchers: make(map[string]map[*chanWatcher]struct{})}
}

// Subscribe registers a watcher for bucket.
func (b *Broadcaster) Subscribe(bucket string) Watcher {
	w := &chanWatcher{
		ch:     make(chan Event, watcherBuffer),
		stop:   make(chan struct{}),
		bucket: bucket,
		owner:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		w.stopped = true
		close(w.stop)
		close(w.ch)

		return w
	}

	if b.watchers[bucket] == nil {
		b.watchers[bucket] = make(map[*chanWatcher]struct{})
	}

	b.watchers[bucket][w] = struct{}{}

	return w
}

// Publish delivers c to every watcher of bucket.
func (b *Broadcaster) Publish(bucket string, c Event) {
	b.mu.Lock()
	targets := make([]*chanWatcher, 0, len(b.watchers[bucket]))
	for w := range b.watchers[bucket] {
		targets = append(targets, w)
	}
	b.mu.Unlock()

	for _, w := range targets {
		w.send(c)
	}
}

// Close stops every watcher.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*chanWatcher
	for _, set := range b.watchers {
		for w := range set {
			all = append(all, w)
		}
	}
	b.mu.Unlock()

	for _, w := range all {
		_ = w.Stop()
	}
}

func (b *Broadcaster) remove(w *chanWatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.watchers[w.bucket], w)
	if len(b.watchers[w.bucket]) == 0 {
		delete(b.watchers, w.bucket)
	}
}

type chanWatcher struct {
	ch     chan Event
	stop   chan struct{}
	bucket string
	owner  *Broadcaster

	mu      sync.Mutex
	stopped bool
	sending sync.WaitGroup
}

func (w *chanWatcher) Changes() <-chan Event {
	return w.ch
}

func (w *chanWatcher) send(c Event) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.sending.Add(1)
	w.mu.Unlock()

	defer w.sending.Done()

	select {
	case w.ch <- c:
	case <-w.stop:
	}
}

func (w *chanWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stop)
	w.mu.Unlock()

	w.owner.remove(w)

	// Close only after in-flight sends have given up.
	w.sending.Wait()
	close(w.ch)

	return nil
}
