// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package sequencer

import (
	"context"
	"testing"

	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport stubs out transport.Transport so these tests exercise
// the framing/checksum logic without a real serial port.
type fakeTransport struct {
	lastReq []byte
	reply   []byte
	err     error
}

func (f *fakeTransport) Open(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                    { return nil }
func (f *fakeTransport) Exchange(ctx context.Context, req []byte, match transport.Matcher) ([]byte, error) {
	f.lastReq = req
	return f.reply, f.err
}

func TestBuildFrameShapeAndChecksum(t *testing.T) {
	frame := buildFrame(cmdSetOutlet, []byte{3, 1})
	require.Len(t, frame, 7)
	assert.Equal(t, byte(headerByte0), frame[0])
	assert.Equal(t, byte(headerByte1), frame[1])
	assert.Equal(t, byte(4), frame[2]) // cmd + 2 payload bytes + checksum
	assert.Equal(t, byte(cmdSetOutlet), frame[3])
	assert.Equal(t, checksum(frame[:6]), frame[6])
}

func TestMatchFrameWaitsForFullLength(t *testing.T) {
	frame := buildFrame(cmdQueryOutlet, []byte{3})
	done, _ := matchFrame(frame[:2])
	assert.False(t, done)
	var n int
	done, n = matchFrame(frame)
	assert.True(t, done)
	assert.Equal(t, len(frame), n)
}

func TestSetOutletSendsCorrectFrame(t *testing.T) {
	ft := &fakeTransport{}
	reply := buildFrame(cmdSetOutlet, []byte{3, 1})
	ft.reply = reply
	d := &Driver{serial: ft}

	require.NoError(t, d.setOutlet(context.Background(), 3, true))
	assert.Equal(t, buildFrame(cmdSetOutlet, []byte{3, 1}), ft.lastReq)
}

func TestQueryOutletDecodesReply(t *testing.T) {
	ft := &fakeTransport{reply: buildFrame(cmdQueryOutlet, []byte{5, 1})}
	d := &Driver{serial: ft}

	on, err := d.queryOutlet(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestExchangeRejectsBadChecksum(t *testing.T) {
	reply := buildFrame(cmdQueryOutlet, []byte{5, 1})
	reply[len(reply)-1] ^= 0xFF
	ft := &fakeTransport{reply: reply}
	d := &Driver{serial: ft}

	_, err := d.queryOutlet(context.Background(), 5)
	require.Error(t, err)
}

func TestExchangeRejectsMismatchedCommand(t *testing.T) {
	ft := &fakeTransport{reply: buildFrame(cmdSetOutlet, []byte{5, 1})}
	d := &Driver{serial: ft}

	_, err := d.queryOutlet(context.Background(), 5)
	require.Error(t, err)
}

func TestReadWriteRoundTripViaGenericPath(t *testing.T) {
	ft := &fakeTransport{reply: buildFrame(cmdSetOutlet, []byte{2, 1})}
	d := &Driver{serial: ft}
	require.NoError(t, d.Write(context.Background(), 2, 1))

	ft.reply = buildFrame(cmdQueryOutlet, []byte{2, 1})
	v, err := d.Read(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestCallMethodUnknownNameUnsupported(t *testing.T) {
	d := &Driver{serial: &fakeTransport{}}
	_, err := d.CallMethod(context.Background(), "doesNotExist", nil)
	require.Error(t, err)
}
