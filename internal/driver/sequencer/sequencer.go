// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

// Package sequencer implements the HS power sequencer framing (spec
// §6): a `5B B5` header, a length byte, a command byte, a payload and
// a trailing sum-of-bytes checksum, over a serial link. Only the HS
// framing is built; Tpris/Novastar/XinkeQ1/3D-Splicer use their own
// framings (55 AA/56, Modbus-TCP, ASCII lines respectively) and would
// each register under their own protocol tag reusing this package's
// checksum/idle-timeout pattern, not this wire format (Non-goal: not
// implemented here, see SPEC_FULL.md C3).
package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/driver"
	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/nexusiot/devicegateway/pkg/protocol"
)

func init() {
	driver.Register("hs_sequencer", newDriver)
}

const (
	headerByte0 = 0x5B
	headerByte1 = 0xB5

	cmdSetOutlet   = 0x01
	cmdQueryOutlet = 0x02
)

// Driver is one HS sequencer unit. Exactly one channel actor ever
// calls it, so the serial link needs no locking here; Serial itself
// already serializes at the byte level.
type Driver struct {
	serial transport.Transport
}

func newDriver(args map[string]any) (protocol.Driver, error) {
	address, ok := args["address"].(string)
	if !ok || address == "" {
		return nil, common.NewConfigError("hs_sequencer: missing \"address\" argument", nil)
	}
	baudRate := 9600
	if v, ok := toInt(args["baud_rate"]); ok && v > 0 {
		baudRate = v
	}
	s := transport.NewSerial(address, baudRate)
	if ms, ok := toInt(args["idle_timeout_ms"]); ok && ms > 0 {
		s.IdleTimeout = time.Duration(ms) * time.Millisecond
	}
	return &Driver{serial: s}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (d *Driver) Kind() string { return "hs_sequencer" }

func (d *Driver) Methods() []string { return []string{"set_outlet", "get_outlet"} }

func (d *Driver) Status(ctx context.Context) (map[string]any, error) {
	return map[string]any{"kind": "hs_sequencer"}, nil
}

func buildFrame(cmd byte, payload []byte) []byte {
	length := byte(len(payload) + 2) // cmd + payload + checksum
	frame := make([]byte, 0, 3+int(length))
	frame = append(frame, headerByte0, headerByte1, length, cmd)
	frame = append(frame, payload...)
	frame = append(frame, checksum(frame))
	return frame
}

func checksum(b []byte) byte {
	var sum byte
	for _, x := range b {
		sum += x
	}
	return sum
}

// matchFrame recognizes a complete HS frame: header, a length byte
// declaring how many bytes follow it, then that many bytes.
func matchFrame(buf []byte) (bool, int) {
	if len(buf) < 3 || buf[0] != headerByte0 || buf[1] != headerByte1 {
		return false, 0
	}
	total := 3 + int(buf[2])
	if len(buf) < total {
		return false, 0
	}
	return true, total
}

func (d *Driver) exchange(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	req := buildFrame(cmd, payload)
	reply, err := d.serial.Exchange(ctx, req, matchFrame)
	if err != nil {
		return nil, err
	}
	if len(reply) < 4 {
		return nil, common.NewProtocolError("hs_sequencer: short reply frame", nil)
	}
	if got := checksum(reply[:len(reply)-1]); got != reply[len(reply)-1] {
		return nil, common.NewProtocolError("hs_sequencer: checksum mismatch", nil)
	}
	if reply[3] != cmd {
		return nil, common.NewProtocolError(fmt.Sprintf("hs_sequencer: reply command %#x does not match request %#x", reply[3], cmd), nil)
	}
	return reply[4 : len(reply)-1], nil
}

func (d *Driver) setOutlet(ctx context.Context, outlet byte, on bool) error {
	state := byte(0)
	if on {
		state = 1
	}
	_, err := d.exchange(ctx, cmdSetOutlet, []byte{outlet, state})
	return err
}

func (d *Driver) queryOutlet(ctx context.Context, outlet byte) (bool, error) {
	payload, err := d.exchange(ctx, cmdQueryOutlet, []byte{outlet})
	if err != nil {
		return false, err
	}
	if len(payload) < 1 {
		return false, common.NewProtocolError("hs_sequencer: empty outlet status payload", nil)
	}
	return payload[0] != 0, nil
}

func (d *Driver) Execute(ctx context.Context, command string, params map[string]any) (protocol.Value, error) {
	return d.CallMethod(ctx, command, params)
}

func (d *Driver) CallMethod(ctx context.Context, name string, args map[string]any) (protocol.Value, error) {
	outlet, _ := toInt(args["outlet"])
	switch name {
	case "set_outlet":
		on, _ := args["on"].(bool)
		return nil, d.setOutlet(ctx, byte(outlet), on)
	case "get_outlet":
		on, err := d.queryOutlet(ctx, byte(outlet))
		return on, err
	default:
		return nil, common.NewUnsupportedOp(fmt.Sprintf("hs_sequencer: unknown method %q", name), nil)
	}
}

// Write treats deviceID as an outlet index and value as on/off.
func (d *Driver) Write(ctx context.Context, deviceID int, value int64) error {
	return d.setOutlet(ctx, byte(deviceID), value != 0)
}

// Read treats deviceID as an outlet index and returns 1/0.
func (d *Driver) Read(ctx context.Context, deviceID int) (int64, error) {
	on, err := d.queryOutlet(ctx, byte(deviceID))
	if err != nil {
		return 0, err
	}
	if on {
		return 1, nil
	}
	return 0, nil
}
