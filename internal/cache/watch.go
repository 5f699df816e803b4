package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"
)

// WatchOptions narrows a watch. Key and KeyPattern are mutually
// exclusive; with neither set every key in the bucket is reported. A
// positive Timeout ends the subscription when no matching event arrives
// within that window.
type WatchOptions struct {
	Key        string
	KeyPattern string
	Timeout    time.Duration
}

func (o WatchOptions) matches(key string) bool {
	switch {
	case o.Key != "":
		return key == o.Key
	case o.KeyPattern != "":
		ok, err := path.Match(o.KeyPattern, key)
		return err == nil && ok
	default:
		return true
	}
}

// Subscription is a live watch on one bucket. Events are delivered in
// store order until the subscription ends, after which the channel is
// closed.
type Subscription struct {
	owner   *Service
	bucket  string
	opts    WatchOptions
	watcher Watcher
	events  chan Event

	once     sync.Once
	done     chan struct{}
	finished chan struct{}
}

// Watch subscribes to changes in bucket. The subscription ends on
// Unsubscribe, Drain, Timeout, cancellation of ctx, or service shutdown.
func (s *Service) Watch(ctx context.Context, bucket string, opts WatchOptions) (*Subscription, error) {
	if _, err := s.bucket(bucket); err != nil {
		return nil, err
	}

	if opts.Key != "" && opts.KeyPattern != "" {
		return nil, fmt.Errorf("watch accepts a key or a key pattern, not both")
	}

	if opts.KeyPattern != "" {
		if _, err := path.Match(opts.KeyPattern, ""); err != nil {
			return nil, fmt.Errorf("invalid key pattern %q: %w", opts.KeyPattern, err)
		}
	}

	w, err := s.store.Watch(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", bucket, err)
	}

	sub := &Subscription{
		owner:    s,
		bucket:   bucket,
		opts:     opts,
		watcher:  w,
		events:   make(chan Event, defaultWatchBacklog),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run(ctx)

	return sub, nil
}

// Events returns the delivery channel. It is closed when the
// subscription ends.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Done is closed once the subscription has been asked to end.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

func (sub *Subscription) run(ctx context.Context) {
	defer close(sub.finished)
	defer close(sub.events)

	var (
		timer   *time.Timer
		timeout <-chan time.Time
	)

	if sub.opts.Timeout > 0 {
		timer = time.NewTimer(sub.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	changes := sub.watcher.Changes()

	for {
		select {
		case <-sub.done:
			return

		case <-ctx.Done():
			sub.stop()
			return

		case <-timeout:
			sub.owner.logger.Debug("watch timed out",
				slog.String("bucket", sub.bucket),
				slog.Duration("timeout", sub.opts.Timeout),
			)
			sub.stop()
			return

		case ev, ok := <-changes:
			if !ok {
				sub.stop()
				return
			}

			if !sub.opts.matches(ev.Key) {
				continue
			}

			select {
			case sub.events <- ev:
			case <-sub.done:
				return
			}

			if timer != nil {
				timer.Reset(sub.opts.Timeout)
			}
		}
	}
}

// stop ends the subscription without waiting for the delivery loop.
func (sub *Subscription) stop() {
	sub.once.Do(func() {
		close(sub.done)

		if err := sub.watcher.Stop(); err != nil {
			sub.owner.logger.Debug("stopping watcher",
				slog.String("bucket", sub.bucket),
				slog.String("error", err.Error()),
			)
		}

		sub.owner.mu.Lock()
		delete(sub.owner.subs, sub)
		sub.owner.mu.Unlock()
	})
}

// Unsubscribe ends the subscription and discards anything not yet
// read. No event is delivered after it returns. It is safe to call
// more than once.
func (sub *Subscription) Unsubscribe() {
	sub.stop()
	<-sub.finished

	for range sub.events {
	}
}

// Drain ends the subscription and returns the events that were
// delivered but not yet read.
func (sub *Subscription) Drain() []Event {
	sub.stop()
	<-sub.finished

	var pending []Event
	for ev := range sub.events {
		pending = append(pending, ev)
	}

	return pending
}
