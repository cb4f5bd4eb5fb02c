// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package relay

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"toolgate/platform/events"
	"toolgate/platform/ledger"
	"toolgate/platform/shared/logger"
	"toolgate/platform/shared/types"
)

// DefaultQueueCapacity bounds the pending UI queue per run.
const DefaultQueueCapacity = 1024

var (
	promRelayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_relay_events_total",
			Help: "Events observed by the relay pump, by kind",
		},
		[]string{"kind"},
	)
	promRelayDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_relay_dropped_total",
			Help: "UI events dropped by the relay, by reason (overflow, post_terminal)",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(promRelayEvents)
	prometheus.MustRegister(promRelayDropped)
}

// EventSource is the upstream producer of one run's events. Next returns
// io.EOF after the stream is exhausted; any other error is an upstream
// failure.
type EventSource interface {
	Next(ctx context.Context) (events.AiEvent, error)
}

// UsageSink receives the billing facts observed by the pump. *ledger.Ledger
// satisfies it.
type UsageSink interface {
	Commit(ctx context.Context, fact ledger.UsageFact, rc types.RunContext) error
}

// Relay pumps one run's upstream events and fans them out to the usage sink
// and a UI stream. The pump goroutine is the only writer to the queue and
// flags; the UI stream is a single reader.
type Relay struct {
	rc   types.RunContext
	sink UsageSink
	log  *logger.Logger

	capacity int

	mu         sync.Mutex
	queue      []events.AiEvent
	waiter     chan struct{}
	terminated bool // terminal event has been enqueued
	pumpDone   bool
	pumpErr    error

	startOnce sync.Once
	done      chan struct{}
}

// Option configures a Relay
type Option func(*Relay)

// WithQueueCapacity overrides the bounded UI queue size
func WithQueueCapacity(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithLogger overrides the default component logger
func WithLogger(lg *logger.Logger) Option {
	return func(r *Relay) { r.log = lg }
}

// New creates a Relay for one run.
func New(rc types.RunContext, sink UsageSink, opts ...Option) *Relay {
	r := &Relay{
		rc:       rc,
		sink:     sink,
		log:      logger.New("relay"),
		capacity: DefaultQueueCapacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the pump goroutine. Only the first call has any effect;
// the pump runs exactly once per run and is never blocked by the UI
// consumer.
func (r *Relay) Start(ctx context.Context, src EventSource) {
	r.startOnce.Do(func() {
		go r.pump(ctx, src)
	})
}

func (r *Relay) pump(ctx context.Context, src EventSource) {
	defer func() {
		r.mu.Lock()
		r.pumpDone = true
		r.wakeLocked()
		r.mu.Unlock()
		close(r.done)
	}()

	// Commits survive run cancellation: a fact observed before the abort
	// still bills.
	commitCtx := context.WithoutCancel(ctx)

	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// Upstream failed mid-run. The UI must still see a terminal
			// event; the failure itself surfaces through Err for the pump's
			// supervisor.
			r.log.Error(r.rc.BillingAccountID, r.rc.RunID, "upstream event source failed",
				map[string]interface{}{"error": err.Error(), "request_id": r.rc.IngressRequestID})
			r.enqueue(events.RunError{Code: runErrorCode(err), Message: "run failed"})
			r.mu.Lock()
			r.pumpErr = err
			r.mu.Unlock()
			return
		}

		promRelayEvents.WithLabelValues(string(ev.Kind())).Inc()

		r.mu.Lock()
		terminated := r.terminated
		r.mu.Unlock()
		if terminated {
			promRelayDropped.WithLabelValues("post_terminal").Inc()
			r.log.Warn(r.rc.BillingAccountID, r.rc.RunID,
				"event after terminal event violates the stream protocol, dropping",
				map[string]interface{}{"kind": string(ev.Kind())})
			continue
		}

		if report, ok := ev.(events.UsageReport); ok {
			// Billing events are never UI-visible. The ledger classifies and
			// swallows its own failures.
			_ = r.sink.Commit(commitCtx, report.Fact, r.rc)
			continue
		}

		r.enqueue(ev)
	}
}

// runErrorCode maps an upstream failure to the run-level error taxonomy.
func runErrorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return events.RunErrTimeout
	case errors.Is(err, context.Canceled):
		return events.RunErrAborted
	default:
		return events.RunErrInternal
	}
}

func (r *Relay) enqueue(ev events.AiEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) >= r.capacity {
		// Drop the oldest queued event to keep the pump unblocked. Terminal
		// events are only ever enqueued last, so the head is never terminal.
		r.queue = r.queue[1:]
		promRelayDropped.WithLabelValues("overflow").Inc()
		r.log.Warn(r.rc.BillingAccountID, r.rc.RunID,
			"UI queue overflow, dropping oldest event",
			map[string]interface{}{"capacity": r.capacity})
	}

	r.queue = append(r.queue, ev)
	if ev.Terminal() {
		r.terminated = true
	}
	r.wakeLocked()
}

func (r *Relay) wakeLocked() {
	if r.waiter != nil {
		close(r.waiter)
		r.waiter = nil
	}
}

// Events returns the UI-facing stream for this run. It supports a single
// consumer. The stream ends immediately after yielding a terminal event, or
// when the pump has finished and the queue is drained (an abnormal path kept
// as a defensive end condition). Cancelling ctx abandons the stream without
// affecting the pump or the ledger.
func (r *Relay) Events(ctx context.Context) <-chan events.AiEvent {
	out := make(chan events.AiEvent)
	go func() {
		defer close(out)
		for {
			ev, ok := r.next(ctx)
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}()
	return out
}

// next blocks until an event is available, the stream is over, or ctx is
// cancelled. The waiter is registered under the same lock as the queue
// check, so a wake-up between check and registration cannot be lost.
func (r *Relay) next(ctx context.Context) (events.AiEvent, bool) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return ev, true
		}
		if r.pumpDone {
			r.mu.Unlock()
			return nil, false
		}
		if r.waiter == nil {
			r.waiter = make(chan struct{})
		}
		waiter := r.waiter
		r.mu.Unlock()

		select {
		case <-waiter:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Done is closed when the pump has exited, success or failure.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Err reports the pump's failure, if any. Valid after Done is closed.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pumpErr
}
