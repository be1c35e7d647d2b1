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

// TCP connects on demand and keeps the connection open across
// exchanges; a transport-level error closes it so the next Exchange
// reconnects (spec §4.3 channel recovery).
type TCP struct {
	Addr           string
	ConnectTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func NewTCP(addr string, connectTimeout time.Duration) *TCP {
	if connectTimeout <= 0 {
		connectTimeout = time.Duration(common.DefaultTaskTimeoutMs) * time.Millisecond
	}
	return &TCP{Addr: addr, ConnectTimeout: connectTimeout}
}

func (t *TCP) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked(ctx)
}

func (t *TCP) openLocked(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: t.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return common.NewTransportError("tcp connect failed to "+t.Addr, err)
	}
	t.conn = conn
	return nil
}

func (t *TCP) Exchange(ctx context.Context, req []byte, match Matcher) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.openLocked(ctx); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Duration(common.DefaultTaskTimeoutMs) * time.Millisecond)
	}
	_ = t.conn.SetDeadline(deadline)

	if _, err := t.conn.Write(req); err != nil {
		t.closeLocked()
		return nil, common.NewTransportError("tcp write failed", err)
	}

	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		if deadlineExceeded(ctx) {
			t.closeLocked()
			return nil, common.NewTimeout("tcp read deadline exceeded", nil)
		}
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if done, want := match(buf); done {
				return buf[:want], nil
			}
		}
		if err != nil {
			if isTimeout(err) {
				t.closeLocked()
				return nil, common.NewTimeout("tcp read timed out", err)
			}
			t.closeLocked()
			return nil, common.NewTransportError("tcp read failed", err)
		}
	}
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *TCP) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func deadlineExceeded(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
