// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

// Package channel implements the per-channel actor runtime (spec
// §4.3): one goroutine owns each protocol driver and serializes every
// call against it through a bounded mailbox, so the driver itself
// never needs a lock.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/pkg/protocol"
)

// State is one point in the channel's lifecycle state machine
// (spec §4.3).
type State int32

const (
	StateInitialized State = iota
	StateRunning
	StateDegraded
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateDegraded:
		return "Degraded"
	case StateStopped:
		return "Stopped"
	default:
		return "Initialized"
	}
}

// Status is a point-in-time snapshot of a channel for
// get_all_channel_status (spec §4.8), enriched per SPEC_FULL.md with
// the last error and last call time.
type Status struct {
	ChannelID   int
	Kind        string
	State       State
	Connected   bool
	LastError   string
	LastCallAt  time.Time
}

type job struct {
	ctx    context.Context
	fn     func(ctx context.Context, d protocol.Driver) (any, error)
	result chan jobResult
}

type jobResult struct {
	val any
	err error
}

// Runtime is one channel actor: exactly one goroutine ever touches
// driver, so the driver's internal buffers and transport need no
// locking of their own.
type Runtime struct {
	ChannelID int
	Kind      string
	driver    protocol.Driver
	lc        common.LoggingClient

	mailbox chan job
	wg      sync.WaitGroup
	closed  chan struct{}

	sendMu  sync.Mutex
	stopped bool

	state      int32 // atomic State
	mu         sync.Mutex
	lastErr    error
	lastCallAt time.Time
}

// New builds and starts a channel actor for the given driver. The
// mailbox capacity should be common.DefaultMailboxCapacity unless a
// deployment overrides it.
func New(channelID int, kind string, d protocol.Driver, lc common.LoggingClient, mailboxCapacity int) *Runtime {
	if mailboxCapacity <= 0 {
		mailboxCapacity = common.DefaultMailboxCapacity
	}
	r := &Runtime{
		ChannelID: channelID,
		Kind:      kind,
		driver:    d,
		lc:        lc,
		mailbox:   make(chan job, mailboxCapacity),
		closed:    make(chan struct{}),
		state:     int32(StateInitialized),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Runtime) loop() {
	defer r.wg.Done()
	for j := range r.mailbox {
		val, err := j.fn(j.ctx, r.driver)
		r.recordOutcome(err)
		select {
		case j.result <- jobResult{val: val, err: err}:
		default:
			// Caller gave up (ctx canceled) and stopped listening;
			// the job still ran to completion per §4.1's contract
			// that a driver call is safe to assume will run to
			// completion once started.
		}
	}
	atomic.StoreInt32(&r.state, int32(StateStopped))
}

func (r *Runtime) recordOutcome(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCallAt = time.Now()
	if err != nil && (common.KindOf(err) == common.KindTransportError || common.KindOf(err) == common.KindTimeout) {
		r.lastErr = err
		atomic.StoreInt32(&r.state, int32(StateDegraded))
		return
	}
	r.lastErr = nil
	atomic.StoreInt32(&r.state, int32(StateRunning))
}

// submit enqueues fn on the mailbox (try-send: a full mailbox is
// ChannelBusy, never unbounded queueing per spec §4.3) and blocks the
// caller until the job runs or ctx is done.
func (r *Runtime) submit(ctx context.Context, fn func(ctx context.Context, d protocol.Driver) (any, error)) (any, error) {
	j := job{ctx: ctx, fn: fn, result: make(chan jobResult, 1)}

	r.sendMu.Lock()
	if r.stopped {
		r.sendMu.Unlock()
		return nil, common.NewTimeout("channel is stopped", nil)
	}
	select {
	case r.mailbox <- j:
		r.sendMu.Unlock()
	default:
		r.sendMu.Unlock()
		return nil, common.NewChannelBusy("channel mailbox full", nil)
	}

	select {
	case res := <-j.result:
		return res.val, res.err
	case <-ctx.Done():
		return nil, common.NewTimeout("call canceled while queued or in flight", ctx.Err())
	}
}

func (r *Runtime) Execute(ctx context.Context, command string, params map[string]any) (protocol.Value, error) {
	v, err := r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		return d.Execute(ctx, command, params)
	})
	return v, err
}

func (r *Runtime) Write(ctx context.Context, deviceID int, value int64) error {
	_, err := r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		return nil, d.Write(ctx, deviceID, value)
	})
	return err
}

func (r *Runtime) Read(ctx context.Context, deviceID int) (int64, error) {
	v, err := r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		return d.Read(ctx, deviceID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// ReadTyped dispatches to the driver's TypedReader capability, or
// UnsupportedOperation if it doesn't implement one.
func (r *Runtime) ReadTyped(ctx context.Context, addr uint16, dataType string, useCache bool) (protocol.Value, error) {
	return r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		tr, ok := d.(protocol.TypedReader)
		if !ok {
			return nil, common.NewUnsupportedOp("driver does not support read_typed", nil)
		}
		return tr.ReadTyped(ctx, addr, dataType, useCache)
	})
}

// WriteTyped dispatches to the driver's TypedWriter capability.
func (r *Runtime) WriteTyped(ctx context.Context, addr uint16, dataType string, value protocol.Value) error {
	_, err := r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		tw, ok := d.(protocol.TypedWriter)
		if !ok {
			return nil, common.NewUnsupportedOp("driver does not support write_typed", nil)
		}
		return nil, tw.WriteTyped(ctx, addr, dataType, value)
	})
	return err
}

func (r *Runtime) CallMethod(ctx context.Context, name string, args map[string]any) (protocol.Value, error) {
	return r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		mc, ok := d.(protocol.MethodCaller)
		if !ok {
			return nil, common.NewUnsupportedOp("driver does not support call_method", nil)
		}
		return mc.CallMethod(ctx, name, args)
	})
}

// ReadBlock dispatches a bulk register read through the mailbox, used
// by the poll layer's auto_call scheduler.
func (r *Runtime) ReadBlock(ctx context.Context, function string, start uint16, count uint16) ([]uint16, error) {
	v, err := r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		br, ok := d.(protocol.BulkReader)
		if !ok {
			return nil, common.NewUnsupportedOp("driver does not support block reads", nil)
		}
		return br.ReadBlock(ctx, function, start, count)
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint16), nil
}

// Decoder exposes the driver's Decoder capability, if any. Decoder
// methods are pure and may be called directly without going through
// the mailbox (see protocol.Decoder).
func (r *Runtime) Decoder() (protocol.Decoder, bool) {
	dec, ok := r.driver.(protocol.Decoder)
	return dec, ok
}

func (r *Runtime) Methods(ctx context.Context) ([]string, error) {
	v, err := r.submit(ctx, func(ctx context.Context, d protocol.Driver) (any, error) {
		return d.Methods(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Status returns a snapshot without going through the mailbox, since
// it must remain available even while the channel is saturated.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	lastErrStr := ""
	if r.lastErr != nil {
		lastErrStr = r.lastErr.Error()
	}
	state := State(atomic.LoadInt32(&r.state))
	return Status{
		ChannelID:  r.ChannelID,
		Kind:       r.Kind,
		State:      state,
		Connected:  state == StateRunning,
		LastError:  lastErrStr,
		LastCallAt: r.lastCallAt,
	}
}

// Drain closes the mailbox so no further calls are accepted and
// waits up to the context's deadline for in-flight and queued work to
// finish (spec §6 "channels finish the in-flight call, mailboxes
// drain up to a bounded timeout").
func (r *Runtime) Drain(ctx context.Context) error {
	r.sendMu.Lock()
	r.stopped = true
	close(r.mailbox)
	r.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return common.NewTimeout("channel drain timed out", ctx.Err())
	}
}
