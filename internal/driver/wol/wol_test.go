// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package wol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMACAcceptsColonAndDashForms(t *testing.T) {
	want := [6]byte{0xAA, 0xBB, 0xCC, 0x00, 0x11, 0x22}
	got, err := parseMAC("AA:BB:CC:00:11:22")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = parseMAC("AA-BB-CC-00-11-22")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseMACRejectsBadInput(t *testing.T) {
	_, err := parseMAC("not-a-mac")
	assert.Error(t, err)
}

func TestMagicPacketShape(t *testing.T) {
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	packet := magicPacket(mac)
	require.Len(t, packet, 102)
	for i := 0; i < 6; i++ {
		assert.Equal(t, byte(0xFF), packet[i])
	}
	assert.Equal(t, mac[:], packet[6:12])
	assert.Equal(t, mac[:], packet[96:102])
}

func echoServer(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	go func() {
		buf := make([]byte, 64)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_, _ = conn.WriteToUDP(buf[:n], addr)
	}()
	t.Cleanup(func() { conn.Close() })
	return conn.LocalAddr().String()
}

func TestPingUpdatesOnlineState(t *testing.T) {
	d := &Driver{udp: transport.NewUDP(echoServer(t), 200*time.Millisecond)}
	assert.False(t, d.isOnline())

	v, err := d.Read(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.True(t, d.isOnline())
}

func TestPingWithoutPeerReportsNotAlive(t *testing.T) {
	d := &Driver{udp: transport.NewUDP("127.0.0.1:1", 100*time.Millisecond)}
	alive, err := d.ping(context.Background())
	if err != nil {
		// A loopback ICMP port-unreachable can surface as a transport
		// error rather than a read timeout; either way nothing is alive.
		assert.Equal(t, common.KindTransportError, common.KindOf(err))
	}
	assert.False(t, alive)
}

func TestWriteZeroUnsupported(t *testing.T) {
	d := &Driver{}
	err := d.Write(context.Background(), 1, 0)
	require.Error(t, err)
	assert.Equal(t, common.KindUnsupportedOp, common.KindOf(err))
}
