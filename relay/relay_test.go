// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/platform/events"
	"toolgate/platform/ledger"
	"toolgate/platform/shared/types"
)

// sliceSource replays a fixed sequence of events, then reports EOF or a
// configured failure
type sliceSource struct {
	mu     sync.Mutex
	events []events.AiEvent
	err    error
}

func (s *sliceSource) Next(ctx context.Context) (events.AiEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

// recordingSink captures committed facts
type recordingSink struct {
	mu    sync.Mutex
	facts []ledger.UsageFact
}

func (s *recordingSink) Commit(ctx context.Context, fact ledger.UsageFact, rc types.RunContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	return nil
}

func (s *recordingSink) Facts() []ledger.UsageFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.UsageFact(nil), s.facts...)
}

func testRC() types.RunContext {
	return types.RunContext{RunID: "r1", BillingAccountID: "acct-1", IngressRequestID: "req-1"}
}

func collect(t *testing.T, r *Relay) []events.AiEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []events.AiEvent
	for ev := range r.Events(ctx) {
		got = append(got, ev)
	}
	return got
}

func usageFact(unitID string) ledger.UsageFact {
	cost := 0.001
	return ledger.UsageFact{
		RunID: "r1", BillingAccountID: "acct-1", Source: "langgraph",
		UsageUnitID: unitID, CostUSD: &cost,
	}
}

func TestRelay_FanoutAndTermination(t *testing.T) {
	src := &sliceSource{events: []events.AiEvent{
		events.TextDelta{Delta: "hel"},
		events.UsageReport{Fact: usageFact("u1")},
		events.TextDelta{Delta: "lo"},
		events.Done{},
	}}
	sink := &recordingSink{}
	r := New(testRC(), sink)
	r.Start(context.Background(), src)

	got := collect(t, r)

	// Usage reports go to the sink and never reach the UI
	require.Len(t, got, 3)
	assert.Equal(t, events.TextDelta{Delta: "hel"}, got[0])
	assert.Equal(t, events.TextDelta{Delta: "lo"}, got[1])
	assert.Equal(t, events.Done{}, got[2])

	facts := sink.Facts()
	require.Len(t, facts, 1)
	assert.Equal(t, "u1", facts[0].UsageUnitID)

	<-r.Done()
	assert.NoError(t, r.Err())
}

func TestRelay_ExactlyOneTerminalEventLast(t *testing.T) {
	src := &sliceSource{events: []events.AiEvent{
		events.TextDelta{Delta: "a"},
		events.Done{},
		// Protocol violations after the terminal event must be dropped
		events.TextDelta{Delta: "late"},
		events.Done{},
	}}
	r := New(testRC(), &recordingSink{})
	r.Start(context.Background(), src)

	got := collect(t, r)

	terminals := 0
	for _, ev := range got {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals, "exactly one terminal event")
	assert.True(t, got[len(got)-1].Terminal(), "terminal event is last")
	require.Len(t, got, 2)
}

func TestRelay_UpstreamFailureSynthesizesError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	src := &sliceSource{
		events: []events.AiEvent{events.TextDelta{Delta: "partial"}},
		err:    boom,
	}
	r := New(testRC(), &recordingSink{})
	r.Start(context.Background(), src)

	got := collect(t, r)

	require.Len(t, got, 2)
	assert.Equal(t, events.TextDelta{Delta: "partial"}, got[0])
	runErr, ok := got[1].(events.RunError)
	require.True(t, ok, "UI must see a synthetic terminal error")
	assert.Equal(t, events.RunErrInternal, runErr.Code)

	// No tool results are fabricated for in-flight calls
	for _, ev := range got {
		_, isResult := ev.(events.ToolCallResult)
		assert.False(t, isResult)
	}

	<-r.Done()
	assert.ErrorIs(t, r.Err(), boom)
}

func TestRelay_UpstreamCancellationMapsToAborted(t *testing.T) {
	src := &sliceSource{err: context.Canceled}
	r := New(testRC(), &recordingSink{})
	r.Start(context.Background(), src)

	got := collect(t, r)
	require.Len(t, got, 1)
	runErr := got[0].(events.RunError)
	assert.Equal(t, events.RunErrAborted, runErr.Code)
}

func TestRelay_AbandonedUIStreamDoesNotAffectCommits(t *testing.T) {
	src := &sliceSource{events: []events.AiEvent{
		events.TextDelta{Delta: "a"},
		events.UsageReport{Fact: usageFact("u1")},
		events.UsageReport{Fact: usageFact("u2")},
		events.Done{},
	}}
	sink := &recordingSink{}
	r := New(testRC(), sink)

	// Abandon immediately: never read Events at all
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = r.Events(ctx)

	r.Start(context.Background(), src)
	<-r.Done()

	facts := sink.Facts()
	require.Len(t, facts, 2)
	assert.Equal(t, "u1", facts[0].UsageUnitID)
	assert.Equal(t, "u2", facts[1].UsageUnitID)
}

func TestRelay_PumpNotBlockedBySlowConsumer(t *testing.T) {
	// More events than the queue can hold, no consumer at all
	var evs []events.AiEvent
	for i := 0; i < 50; i++ {
		evs = append(evs, events.TextDelta{Delta: "x"})
	}
	evs = append(evs, events.Done{})
	src := &sliceSource{events: evs}

	r := New(testRC(), &recordingSink{}, WithQueueCapacity(8))
	r.Start(context.Background(), src)

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pump blocked by missing consumer")
	}

	// The terminal event survives overflow and still ends the stream
	got := collect(t, r)
	require.NotEmpty(t, got)
	assert.True(t, got[len(got)-1].Terminal())
	assert.LessOrEqual(t, len(got), 8)
}

func TestRelay_StartIsIdempotent(t *testing.T) {
	src := &sliceSource{events: []events.AiEvent{events.Done{}}}
	sink := &recordingSink{}
	r := New(testRC(), sink)

	r.Start(context.Background(), src)
	r.Start(context.Background(), src)
	<-r.Done()

	got := collect(t, r)
	require.Len(t, got, 1, "pump must run exactly once per run")
}

// blockingSource hands out events only when fed, exercising the
// waiter/wake-up path
type blockingSource struct {
	ch chan events.AiEvent
}

func (s *blockingSource) Next(ctx context.Context) (events.AiEvent, error) {
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRelay_ConsumerWaitsForPump(t *testing.T) {
	src := &blockingSource{ch: make(chan events.AiEvent)}
	r := New(testRC(), &recordingSink{})
	r.Start(context.Background(), src)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := r.Events(ctx)

	// Consumer is already waiting when the first event arrives
	go func() {
		src.ch <- events.TextDelta{Delta: "late arrival"}
		src.ch <- events.Done{}
		close(src.ch)
	}()

	var got []events.AiEvent
	for ev := range stream {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, events.TextDelta{Delta: "late arrival"}, got[0])
	assert.True(t, got[1].Terminal())
}

func TestRelay_PumpFinishedWithoutTerminalEndsStream(t *testing.T) {
	// Upstream ends cleanly without ever producing a terminal event: a
	// defensive path, the stream must still end rather than hang.
	src := &sliceSource{events: []events.AiEvent{events.TextDelta{Delta: "a"}}}
	r := New(testRC(), &recordingSink{})
	r.Start(context.Background(), src)
	<-r.Done()

	got := collect(t, r)
	require.Len(t, got, 1)
	assert.Equal(t, events.TextDelta{Delta: "a"}, got[0])
}
