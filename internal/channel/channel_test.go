// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver records call order and can be told to sleep or fail on
// demand, enough to exercise serialization, backpressure and
// recovery without a real transport.
type fakeDriver struct {
	mu       sync.Mutex
	values   map[int]int64
	delay    time.Duration
	failNext bool
	calls    []int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{values: map[int]int64{}}
}

func (f *fakeDriver) Kind() string { return "fake" }

func (f *fakeDriver) Execute(ctx context.Context, command string, params map[string]any) (any, error) {
	return nil, common.NewUnsupportedOp("no commands", nil)
}

func (f *fakeDriver) Write(ctx context.Context, deviceID int, value int64) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deviceID)
	if f.failNext {
		f.failNext = false
		return common.NewTransportError("simulated failure", nil)
	}
	f.values[deviceID] = value
	return nil
}

func (f *fakeDriver) Read(ctx context.Context, deviceID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[deviceID], nil
}

func (f *fakeDriver) Methods() []string { return nil }

func (f *fakeDriver) Status(ctx context.Context) (map[string]any, error) { return nil, nil }

func testLogger() common.LoggingClient {
	return common.NewClient("test", nil, common.LevelError)
}

func TestChannelSerializesCalls(t *testing.T) {
	d := newFakeDriver()
	r := New(1, "fake", d, testLogger(), 64)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.Write(context.Background(), 1, int64(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Len(t, d.calls, 10)
}

func TestChannelFIFOOrderPerChannel(t *testing.T) {
	d := newFakeDriver()
	r := New(1, "fake", d, testLogger(), 64)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Write(context.Background(), i, int64(i)))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, d.calls)
}

func TestChannelBusyOnFullMailbox(t *testing.T) {
	d := newFakeDriver()
	d.delay = 100 * time.Millisecond
	r := New(1, "fake", d, testLogger(), 1)

	// Fill the one-call mailbox with a slow write, then saturate it.
	go r.Write(context.Background(), 1, 1)
	time.Sleep(10 * time.Millisecond) // let the first call be dequeued into the running job

	var busy int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Write(context.Background(), 1, 1)
			if common.KindOf(err) == common.KindChannelBusy {
				atomic.AddInt32(&busy, 1)
			}
		}()
	}
	wg.Wait()
	assert.Greater(t, int(busy), 0)
}

func TestChannelDegradesAndRecovers(t *testing.T) {
	d := newFakeDriver()
	r := New(1, "fake", d, testLogger(), 64)

	d.failNext = true
	err := r.Write(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, StateDegraded, r.Status().State)

	require.NoError(t, r.Write(context.Background(), 1, 1))
	assert.Equal(t, StateRunning, r.Status().State)
}

func TestChannelDrainStopsAcceptingWork(t *testing.T) {
	d := newFakeDriver()
	r := New(1, "fake", d, testLogger(), 64)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))
	assert.Equal(t, StateStopped, r.Status().State)
}
