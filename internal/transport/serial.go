// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/nexusiot/devicegateway/internal/common"
)

// Serial frames one request/reply exchange per protocol's own
// framing, enforcing an inter-frame idle timeout: if no byte arrives
// for IdleTimeout, whatever has been read so far is discarded as a
// partial frame (spec §4.2).
type Serial struct {
	Address     string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string // N, E, O
	IdleTimeout time.Duration

	mu   sync.Mutex
	port io.ReadWriteCloser
}

func NewSerial(address string, baud int) *Serial {
	return &Serial{
		Address:     address,
		BaudRate:    baud,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		IdleTimeout: 200 * time.Millisecond,
	}
}

func (s *Serial) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Serial) openLocked() error {
	if s.port != nil {
		return nil
	}
	cfg := &serial.Config{
		Address:  s.Address,
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
		Timeout:  s.IdleTimeout,
	}
	p, err := serial.Open(cfg)
	if err != nil {
		return common.NewTransportError("serial open failed for "+s.Address, err)
	}
	s.port = p
	return nil
}

func (s *Serial) Exchange(ctx context.Context, req []byte, match Matcher) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return nil, err
	}

	if _, err := s.port.Write(req); err != nil {
		s.closeLocked()
		return nil, common.NewTransportError("serial write failed", err)
	}

	deadline, hasDeadline := ctx.Deadline()
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 64)
	for {
		if hasDeadline && time.Now().After(deadline) {
			return nil, common.NewTimeout("serial exchange deadline exceeded", nil)
		}
		n, err := s.port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if done, want := match(buf); done {
				return buf[:want], nil
			}
			continue
		}
		if err != nil {
			if err == io.EOF || isIdleTimeout(err) {
				// Idle timeout with an incomplete frame: discard it
				// per spec and let the caller retry.
				return nil, common.NewTimeout("serial read timed out with partial frame", err)
			}
			s.closeLocked()
			return nil, common.NewTransportError("serial read failed", err)
		}
	}
}

func isIdleTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Serial) closeLocked() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
