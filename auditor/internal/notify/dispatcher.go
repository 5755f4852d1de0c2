package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrDropped is reported for a message evicted from a full dispatch queue.
var ErrDropped = errors.New("notify: dispatch queue full, message dropped")

// Dispatcher makes any Sender fire-and-forget. Send only enqueues; Run
// drains the queue in the background and reports each outcome to the done
// callback. When the queue is full the oldest message is evicted.
//
// Failed deliveries are reported, never retried.
type Dispatcher struct {
	sender  Sender
	buf     chan Message
	timeout time.Duration
	done    func(Message, error)
}

// NewDispatcher wraps s with a queue of the given size. done may be nil.
func NewDispatcher(s Sender, size int, timeout time.Duration, done func(Message, error)) *Dispatcher {
	if done == nil {
		done = func(Message, error) {}
	}
	return &Dispatcher{
		sender:  s,
		buf:     make(chan Message, size),
		timeout: timeout,
		done:    done,
	}
}

func (d *Dispatcher) Name() string { return "async:" + d.sender.Name() }

// Send enqueues m and returns immediately. It never fails. Under a context
// from WithHold the message is kept back until the Hold is released.
func (d *Dispatcher) Send(ctx context.Context, m Message) error {
	if h, ok := ctx.Value(holdKey{}).(*Hold); ok && h.keep(d, m) {
		return nil
	}
	d.enqueue(m)
	return nil
}

func (d *Dispatcher) enqueue(m Message) {
	select {
	case d.buf <- m:
	default:
		select {
		case old := <-d.buf:
			slog.Warn("notify: queue full, evicted oldest message",
				"event", old.EventID, "queue_cap", cap(d.buf))
			d.done(old, ErrDropped)
		default:
		}
		d.buf <- m
	}
}

type holdKey struct{}

type heldMessage struct {
	d *Dispatcher
	m Message
}

// Hold defers queueing for every Dispatcher.Send made under its context.
// Outcomes of held messages cannot be reported before Release, so callers
// use it to finish bookkeeping the done callback depends on.
type Hold struct {
	mu       sync.Mutex
	held     []heldMessage
	released bool
}

// WithHold returns a context under which dispatchers keep messages back
// until the returned Hold is released.
func WithHold(ctx context.Context) (context.Context, *Hold) {
	h := &Hold{}
	return context.WithValue(ctx, holdKey{}, h), h
}

func (h *Hold) keep(d *Dispatcher, m Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.held = append(h.held, heldMessage{d: d, m: m})
	return true
}

// Len returns the number of messages waiting for Release.
func (h *Hold) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.held)
}

// Release queues the held messages in arrival order. Sends made after
// Release are queued directly. Calling it again is a no-op.
func (h *Hold) Release() {
	h.mu.Lock()
	held := h.held
	h.held = nil
	h.released = true
	h.mu.Unlock()
	for _, hm := range held {
		hm.d.enqueue(hm.m)
	}
}

// Pending returns the number of queued messages.
func (d *Dispatcher) Pending() int { return len(d.buf) }

// Run delivers queued messages until ctx is cancelled. Messages still queued
// at that point are delivered with a fresh timeout before Run returns, so a
// graceful shutdown does not lose escalations.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			d.flush()
			return
		}
		select {
		case <-ctx.Done():
			d.flush()
			return
		case m := <-d.buf:
			d.deliver(ctx, m)
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case m := <-d.buf:
			d.deliver(context.Background(), m)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.sender.Send(sendCtx, m)
	cancel()
	if err != nil {
		slog.Error("notify: async delivery failed", "event", m.EventID, "err", err)
	}
	d.done(m, err)
}

// Observed reports the outcome of every synchronous send to done.
type Observed struct {
	Sender
	Done func(Message, error)
}

func (o Observed) Send(ctx context.Context, m Message) error {
	err := o.Sender.Send(ctx, m)
	if o.Done != nil {
		o.Done(m, err)
	}
	return err
}
