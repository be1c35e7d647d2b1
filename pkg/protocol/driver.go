// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Canonical Ltd
// Copyright (C) 2018-2019 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the capability set every protocol driver
// implements (spec §4.1). It is the one contract a new device family
// has to satisfy to be added to the gateway; the rest of the core
// never imports a concrete driver package directly, only this one.
package protocol

import "context"

// Value is the result of a read, execute or call_method. The
// concrete type carried is driver-specific (int64, float64, bool,
// string, or a structured map for JSON-ish status blobs).
type Value = interface{}

// Driver is the capability set a protocol implementation exposes to
// the channel runtime. All methods receive a context carrying the
// call's deadline (spec §5); a driver must abort its transport
// operation and return when ctx is done.
//
// Execute, Write and Read are mandatory. ReadTyped and CallMethod are
// optional: a driver that doesn't support them simply doesn't
// implement TypedReader / MethodCaller, and the channel runtime
// answers such calls with common.NewUnsupportedOp. Callers detect
// support via Methods() or a type assertion against those interfaces.
type Driver interface {
	// Kind returns the protocol tag this driver was registered under.
	Kind() string

	// Execute runs a named command with opaque parameters and returns
	// a single value. Unknown commands return UnsupportedOperation.
	Execute(ctx context.Context, command string, params map[string]any) (Value, error)

	// Write sets a device-local point to an integer value. How deviceID
	// is interpreted is driver-specific; the drivers in this module do
	// not reject an unrecognised device id with InvalidArgument.
	Write(ctx context.Context, deviceID int, value int64) error

	// Read returns the current integer value of a device-local point.
	Read(ctx context.Context, deviceID int) (int64, error)

	// Methods lists the extra call_method names this driver answers to,
	// in a stable order.
	Methods() []string

	// Status reports a JSON-serializable snapshot of driver-internal
	// state (e.g. connection flags, last session token expiry).
	Status(ctx context.Context) (map[string]any, error)
}

// TypedReader is implemented by drivers whose wire format carries more
// than a bare int64 (Modbus registers with explicit widths/signedness,
// for instance). use_cache lets a caller opt out of the poll/cache
// layer's staleness for an authoritative read (spec §4.4).
type TypedReader interface {
	ReadTyped(ctx context.Context, addr uint16, dataType string, useCache bool) (Value, error)
}

// TypedWriter is the write-side counterpart used by the round-trip
// law in spec §8: write_typed followed by a non-cached read_typed
// must return the written value.
type TypedWriter interface {
	WriteTyped(ctx context.Context, addr uint16, dataType string, value Value) error
}

// MethodCaller is implemented by drivers that advertise extra named
// methods beyond Execute/Read/Write (e.g. iBMC's ResetType variants).
type MethodCaller interface {
	CallMethod(ctx context.Context, name string, args map[string]any) (Value, error)
}

// BulkReader is implemented by register-oriented drivers (Modbus) so
// the poll/cache layer (C5) can fetch an auto_call block in one
// device round trip instead of one per address. The returned slice
// has one raw 16-bit register word per address in [start, start+count).
type BulkReader interface {
	ReadBlock(ctx context.Context, function string, start uint16, count uint16) ([]uint16, error)
}

// Decoder exposes a driver's wire encoding as pure, side-effect-free
// functions so the poll/cache layer can decode cached register bytes
// and re-encode a freshly read value for the cache without going
// through the channel mailbox a second time. Implementations must not
// touch any transport or mutable driver state: these are called from
// whichever goroutine owns the cache, not the channel actor.
type Decoder interface {
	// RegisterWidth returns how many 16-bit registers dataType spans.
	RegisterWidth(dataType string) (int, error)
	DecodeTyped(dataType string, raw []byte) (Value, error)
	EncodeTyped(dataType string, value Value) ([]byte, error)
}

// Constructor builds a Driver from a channel's opaque, already-decoded
// configuration arguments. Registered constructors are looked up by
// protocol tag (see internal/driver.Register).
type Constructor func(args map[string]any) (Driver, error)
