// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
)

// UDP is a stateless datagram transport: every Exchange sends one
// datagram and waits for one reply, correlated purely by content
// since UDP has no connection (spec §4.2). Lost replies surface as
// Timeout; no retransmission is attempted here — a driver that wants
// retries has to loop at its own layer (WoL ping sends once).
type UDP struct {
	Addr        string
	ReadTimeout time.Duration

	mu   sync.Mutex
	conn *net.UDPConn
}

func NewUDP(addr string, readTimeout time.Duration) *UDP {
	if readTimeout <= 0 {
		readTimeout = 500 * time.Millisecond
	}
	return &UDP{Addr: addr, ReadTimeout: readTimeout}
}

func (u *UDP) Open(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.openLocked()
}

func (u *UDP) openLocked() error {
	if u.conn != nil {
		return nil
	}
	raddr, err := net.ResolveUDPAddr("udp", u.Addr)
	if err != nil {
		return common.NewTransportError("udp resolve failed for "+u.Addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return common.NewTransportError("udp dial failed for "+u.Addr, err)
	}
	u.conn = conn
	return nil
}

func (u *UDP) Exchange(ctx context.Context, req []byte, match Matcher) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.openLocked(); err != nil {
		return nil, err
	}

	timeout := u.ReadTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	if _, err := u.conn.Write(req); err != nil {
		return nil, common.NewTransportError("udp send failed", err)
	}

	_ = u.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 2048)
	n, err := u.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, common.NewTimeout("udp reply timed out", err)
		}
		return nil, common.NewTransportError("udp read failed", err)
	}

	reply := buf[:n]
	if match != nil {
		if done, want := match(reply); !done {
			return nil, common.NewProtocolError("udp reply did not match expected frame", nil)
		} else {
			reply = reply[:want]
		}
	}
	return reply, nil
}

// Send fires a datagram without waiting for a reply, used by
// broadcast-style operations like Wake-on-LAN.
func (u *UDP) Send(ctx context.Context, req []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.openLocked(); err != nil {
		return err
	}
	if _, err := u.conn.Write(req); err != nil {
		return common.NewTransportError("udp send failed", err)
	}
	return nil
}

func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

// Broadcast sends a single UDP datagram to a broadcast-capable
// address (e.g. 255.255.255.255:9 for Wake-on-LAN magic packets).
func Broadcast(addr string, payload []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return common.NewTransportError("udp broadcast resolve failed", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return common.NewTransportError("udp broadcast dial failed", err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return common.NewTransportError("udp broadcast send failed", err)
	}
	return nil
}
