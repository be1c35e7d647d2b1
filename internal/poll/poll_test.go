// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/nexusiot/devicegateway/internal/channel"
	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// regDriver is a minimal register-oriented driver used to exercise
// the cache and read-through logic without a real Modbus device.
type regDriver struct {
	regs map[uint16]uint16
}

func (d *regDriver) Kind() string { return "regtest" }
func (d *regDriver) Execute(ctx context.Context, command string, params map[string]any) (any, error) {
	return nil, common.NewUnsupportedOp("n/a", nil)
}
func (d *regDriver) Write(ctx context.Context, deviceID int, value int64) error { return nil }
func (d *regDriver) Read(ctx context.Context, deviceID int) (int64, error)      { return 0, nil }
func (d *regDriver) Methods() []string                                         { return nil }
func (d *regDriver) Status(ctx context.Context) (map[string]any, error)        { return nil, nil }

func (d *regDriver) ReadBlock(ctx context.Context, function string, start uint16, count uint16) ([]uint16, error) {
	out := make([]uint16, count)
	for i := uint16(0); i < count; i++ {
		out[i] = d.regs[start+i]
	}
	return out, nil
}

func (d *regDriver) ReadTyped(ctx context.Context, addr uint16, dataType string, useCache bool) (any, error) {
	return int64(d.regs[addr]), nil
}

func (d *regDriver) RegisterWidth(dataType string) (int, error) {
	if dataType == "int32" {
		return 2, nil
	}
	return 1, nil
}

func (d *regDriver) DecodeTyped(dataType string, raw []byte) (any, error) {
	if dataType == "int32" {
		return int64(binary.BigEndian.Uint32(raw)), nil
	}
	return int64(binary.BigEndian.Uint16(raw)), nil
}

func (d *regDriver) EncodeTyped(dataType string, value any) ([]byte, error) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(value.(int64)))
	return buf, nil
}

func testLogger() common.LoggingClient { return common.NewClient("test", nil, common.LevelError) }

func TestCachePutAndGetRange(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.PutRegisters(5, []uint16{250, 7}, now)

	raw, storedAt, ok := c.GetRange(5, 2)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 250, 0, 7}, raw)
	assert.WithinDuration(t, now, storedAt, time.Millisecond)

	_, _, ok = c.GetRange(4, 2)
	assert.False(t, ok)
}

func TestReadThroughCacheHit(t *testing.T) {
	d := &regDriver{regs: map[uint16]uint16{5: 250}}
	rt := channel.New(1, "regtest", d, testLogger(), 8)
	cache := NewCache()
	cache.PutRegisters(5, []uint16{250}, time.Now())

	val, err := ReadThrough(context.Background(), rt, cache, 5, "int16", true)
	require.NoError(t, err)
	assert.Equal(t, int64(250), val)
}

func TestReadThroughCacheMissDispatchesDirect(t *testing.T) {
	d := &regDriver{regs: map[uint16]uint16{5: 42}}
	rt := channel.New(1, "regtest", d, testLogger(), 8)
	cache := NewCache()

	val, err := ReadThrough(context.Background(), rt, cache, 5, "int16", true)
	require.NoError(t, err)
	assert.Equal(t, int64(42), val)

	// backfilled
	raw, _, ok := cache.GetRange(5, 1)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 42}, raw)
}

func TestEverySpecFormatsMilliseconds(t *testing.T) {
	assert.Equal(t, "@every 1s", everySpec(1000))
}
