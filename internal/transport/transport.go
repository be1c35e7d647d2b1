// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the TCP, UDP, serial and HTTPS
// adapters drivers use to reach physical devices (spec §4.2). Every
// adapter exposes the same two-call shape: Open establishes the
// link, Exchange sends a request and waits for a reply matcher to
// signal completion or the deadline to expire. No adapter method may
// block past the context's deadline.
package transport

import "context"

// Matcher inspects the bytes read so far and reports whether a
// complete reply is present, and if so how many bytes from the start
// belong to it (for framings where a fixed header declares payload
// length, e.g. Modbus-over-serial or the 5B B5 sequencer framing).
type Matcher func(buf []byte) (done bool, n int)

// ExactLength returns a Matcher satisfied once n bytes have arrived.
func ExactLength(n int) Matcher {
	return func(buf []byte) (bool, int) {
		if len(buf) >= n {
			return true, n
		}
		return false, 0
	}
}

// LineTerminated returns a Matcher satisfied once the given delimiter
// byte has arrived, consuming it and everything before it (used by
// line-framed protocols like PJLink).
func LineTerminated(delim byte) Matcher {
	return func(buf []byte) (bool, int) {
		for i, b := range buf {
			if b == delim {
				return true, i + 1
			}
		}
		return false, 0
	}
}

// Transport is the common shape of every device link the gateway
// drives. Open is idempotent: calling it on an already-open
// transport is a no-op.
type Transport interface {
	Open(ctx context.Context) error
	Exchange(ctx context.Context, req []byte, match Matcher) ([]byte, error)
	Close() error
}
