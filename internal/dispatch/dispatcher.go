// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dispatch routes switch events to handlers.
//
// Each switch gets its own worker goroutine and bounded queue, so events of
// one switch are handled in arrival order while switches run in parallel.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/metrics"
)

// DefaultQueueDepth is the per-switch queue length.
const DefaultQueueDepth = 256

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New(errors.KindUnavailable, "dispatcher closed")

// ErrHandlerPanic wraps a recovered handler panic.
var ErrHandlerPanic = errors.New(errors.KindInternal, "handler panic")

// Handler processes one event.
type Handler func(ctx context.Context, ev datapath.Event) error

// Dispatcher is an explicit event-kind to handler table.
type Dispatcher struct {
	handlers map[datapath.EventKind]Handler

	mu      sync.RWMutex
	workers map[uint64]chan datapath.Event
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	depth   int
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithQueueDepth(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.depth = n
		}
	}
}

func WithLogger(l *logging.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// New creates a dispatcher with no handlers.
func New(opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handlers: make(map[datapath.EventKind]Handler),
		workers:  make(map[uint64]chan datapath.Event),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		depth:    DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.WithComponent("dispatch")
	}
	return d
}

// Register binds h to kind. Registration must happen before the first Submit.
func (d *Dispatcher) Register(kind datapath.EventKind, h Handler) {
	d.handlers[kind] = h
}

// Submit queues ev on its switch's worker. It blocks while the queue is full
// until ctx is done or the dispatcher closes.
func (d *Dispatcher) Submit(ctx context.Context, ev datapath.Event) error {
	if _, ok := d.handlers[ev.Kind()]; !ok {
		d.metrics.EventRejected(ev.Kind().String())
		return errors.Errorf(errors.KindValidation, "no handler for %s", ev.Kind())
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	ch, ok := d.workers[ev.Switch()]
	d.mu.RUnlock()

	if !ok {
		var err error
		if ch, err = d.spawn(ev.Switch()); err != nil {
			return err
		}
	}

	// Hold the read lock while sending so Close cannot close ch underneath us.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		d.metrics.EventRejected(ev.Kind().String())
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	}
}

func (d *Dispatcher) spawn(sw uint64) (chan datapath.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if ch, ok := d.workers[sw]; ok {
		return ch, nil
	}

	ch := make(chan datapath.Event, d.depth)
	d.workers[sw] = ch
	d.wg.Add(1)
	go d.run(sw, ch)
	return ch, nil
}

func (d *Dispatcher) run(sw uint64, ch <-chan datapath.Event) {
	defer d.wg.Done()
	for ev := range ch {
		d.handle(ev)
	}
	d.logger.Debug("worker stopped", "switch", sw)
}

// Process runs the handler for ev on the calling goroutine. A handler panic
// is recovered, logged and returned wrapping ErrHandlerPanic.
func (d *Dispatcher) Process(ctx context.Context, ev datapath.Event) (err error) {
	h, ok := d.handlers[ev.Kind()]
	if !ok {
		return errors.Errorf(errors.KindValidation, "no handler for %s", ev.Kind())
	}
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerPanic()
			d.logger.Error("handler panic",
				"switch", ev.Switch(),
				"event", ev.Kind().String(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = errors.Wrapf(ErrHandlerPanic, errors.KindInternal, "%s: %v", ev.Kind(), r)
		}
	}()
	return h(ctx, ev)
}

func (d *Dispatcher) handle(ev datapath.Event) {
	err := d.Process(d.ctx, ev)
	if err == nil || errors.Is(err, ErrHandlerPanic) {
		return
	}

	log := d.logger.WithError(err)
	switch errors.GetKind(err) {
	case errors.KindNotFound, errors.KindMalformed:
		log.Debug("event skipped", "switch", ev.Switch(), "event", ev.Kind().String())
	case errors.KindTransport:
		log.Warn("switch command failed", "switch", ev.Switch(), "event", ev.Kind().String())
	default:
		log.Error("event handler failed", "switch", ev.Switch(), "event", ev.Kind().String())
	}
}

// Close stops accepting events, drains every queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		// Release senders blocked on full queues before taking the write lock.
		close(d.done)

		d.mu.Lock()
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
		d.mu.Unlock()

		d.wg.Wait()
		d.cancel()
	})
}
