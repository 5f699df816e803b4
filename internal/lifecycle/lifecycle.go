// Package lifecycle implements a reference-counted start/stop state
// machine shared by long-lived components.
//
// A component is started on behalf of named consumers. The first Start
// runs the initialize hook; concurrent callers wait for that same run.
// The component is only shut down once every consumer has called Stop.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State is the position of a controller in its state machine.
type State int

const (
	Stopped State = iota
	Starting
	Started
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Starting:
		return "STARTING"
	case Started:
		return "STARTED"
	case Stopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrDuplicateConsumer is returned when a consumer name is already
	// registered on the controller.
	ErrDuplicateConsumer = errors.New("consumer name must be unique per service")

	// ErrUnknownConsumer is returned by Stop for a name that never started.
	ErrUnknownConsumer = errors.New("consumer is not registered")
)

// Hooks are the side effects run on the Stopped→Started and
// Started→Stopped transitions. Either may be nil.
type Hooks struct {
	Initialize func(ctx context.Context) error
	Shutdown   func(ctx context.Context) error
}

// Controller tracks consumers and drives the hooks. The zero value is not
// usable; create one with New.
type Controller struct {
	name  string
	hooks Hooks

	mu        sync.Mutex
	state     State
	consumers map[string]struct{}
	// settled is closed when the in-flight Starting or Stopping
	// transition completes.
	settled chan struct{}
	// startErr holds the result of the last initialize run for callers
	// that waited on it.
	startErr error
}

// New creates a stopped controller.
func New(name string, hooks Hooks) *Controller {
	return &Controller{
		name:      name,
		hooks:     hooks,
		consumers: make(map[string]struct{}),
	}
}

// Name returns the service name the controller was created with.
func (c *Controller) Name() string {
	return c.name
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Consumers returns the registered consumer names in sorted order.
func (c *Controller) Consumers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.consumers))
	for name := range c.consumers {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Start registers consumer and makes sure the component is started.
func (c *Controller) Start(ctx context.Context, consumer string) error {
	for {
		c.mu.Lock()

		switch c.state {
		case Started:
			err := c.register(consumer)
			c.mu.Unlock()

			return err

		case Starting:
			if err := c.register(consumer); err != nil {
				c.mu.Unlock()
				return err
			}

			settled := c.settled
			c.mu.Unlock()

			if err := wait(ctx, settled); err != nil {
				c.mu.Lock()
				delete(c.consumers, consumer)
				c.mu.Unlock()

				return err
			}

			c.mu.Lock()
			err := c.startErr
			c.mu.Unlock()

			return err

		case Stopping:
			settled := c.settled
			c.mu.Unlock()

			if err := wait(ctx, settled); err != nil {
				return err
			}

			continue

		default:
			if err := c.register(consumer); err != nil {
				c.mu.Unlock()
				return err
			}

			c.state = Starting
			c.startErr = nil
			settled := make(chan struct{})
			c.settled = settled
			c.mu.Unlock()

			var err error
			if c.hooks.Initialize != nil {
				err = c.hooks.Initialize(ctx)
			}

			c.mu.Lock()
			if err != nil {
				err = fmt.Errorf("starting %s: %w", c.name, err)
				c.state = Stopped
				clear(c.consumers)
			} else {
				c.state = Started
			}

			c.startErr = err
			close(settled)
			c.mu.Unlock()

			return err
		}
	}
}

// Stop deregisters consumer. The shutdown hook runs when the last
// consumer leaves.
func (c *Controller) Stop(ctx context.Context, consumer string) error {
	for {
		c.mu.Lock()

		if c.state == Starting || c.state == Stopping {
			settled := c.settled
			c.mu.Unlock()

			if err := wait(ctx, settled); err != nil {
				return err
			}

			continue
		}

		if _, ok := c.consumers[consumer]; !ok {
			c.mu.Unlock()
			return fmt.Errorf("%s: %w: %q", c.name, ErrUnknownConsumer, consumer)
		}

		delete(c.consumers, consumer)

		if len(c.consumers) > 0 || c.state != Started {
			c.mu.Unlock()
			return nil
		}

		c.state = Stopping
		settled := make(chan struct{})
		c.settled = settled
		c.mu.Unlock()

		var err error
		if c.hooks.Shutdown != nil {
			err = c.hooks.Shutdown(ctx)
		}

		c.mu.Lock()
		c.state = Stopped
		close(settled)
		c.mu.Unlock()

		if err != nil {
			return fmt.Errorf("stopping %s: %w", c.name, err)
		}

		return nil
	}
}

// register must be called with c.mu held.
func (c *Controller) register(consumer string) error {
	if _, ok := c.consumers[consumer]; ok {
		return fmt.Errorf("%s: %w: %q", c.name, ErrDuplicateConsumer, consumer)
	}

	c.consumers[consumer] = struct{}{}

	return nil
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
