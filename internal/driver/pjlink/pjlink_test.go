// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package pjlink

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProjector emulates a no-auth PJLink class 1 device: it sends
// "PJLINK 0\r" on connect, then echoes "%1<CMD>=OK\r" for POWR writes
// and "%1POWR=1\r" for a status query.
func fakeProjector(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("PJLINK 0\r"))
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\r')
			if err != nil {
				return
			}
			switch line {
			case "%1POWR 1\r":
				_, _ = conn.Write([]byte("%1POWR=OK\r"))
			case "%1POWR 0\r":
				_, _ = conn.Write([]byte("%1POWR=OK\r"))
			case "%1POWR ?\r":
				_, _ = conn.Write([]byte("%1POWR=1\r"))
			default:
				_, _ = conn.Write([]byte("%1ERR=ERR1\r"))
			}
		}
	}()
	go func() {
		<-time.After(2 * time.Second)
		ln.Close()
	}()
	return ln.Addr().String()
}

func newTestDriver(addr string) *Driver {
	return &Driver{tcp: transport.NewTCP(addr, time.Second)}
}

func TestPowerOnAndStatus(t *testing.T) {
	addr := fakeProjector(t)
	d := newTestDriver(addr)

	require.NoError(t, d.Write(context.Background(), 1, 1))

	v, err := d.Read(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestUnknownCommandReturnsProtocolError(t *testing.T) {
	addr := fakeProjector(t)
	d := newTestDriver(addr)

	_, err := d.sendCommand(context.Background(), "%1BOGUS ?")
	require.Error(t, err)
}

func TestCallMethodUnknownNameUnsupported(t *testing.T) {
	d := newTestDriver(fakeProjector(t))
	_, err := d.CallMethod(context.Background(), "doesNotExist", nil)
	require.Error(t, err)
}
