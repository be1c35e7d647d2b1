// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

// Package pjlink implements the PJLink projector driver (spec §6):
// line-framed TCP on port 4352, an optional MD5 digest-auth handshake
// performed once per connection, and the powerOn/powerOff/getStatus/
// set_input/get_lamp_hours command set.
package pjlink

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/driver"
	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/nexusiot/devicegateway/pkg/protocol"
)

func init() {
	driver.Register("pjlink", newDriver)
}

const defaultPort = 4352

// Driver is one PJLink projector link. Exactly one channel actor ever
// calls it, so the handshake state below needs no locking.
type Driver struct {
	password string
	tcp      transport.Transport

	handshakeDone bool
	digestPrefix  string
}

func newDriver(args map[string]any) (protocol.Driver, error) {
	host, ok := args["host"].(string)
	if !ok || host == "" {
		return nil, common.NewConfigError("pjlink: missing \"host\" argument", nil)
	}
	port := defaultPort
	if v, ok := toInt(args["port"]); ok && v > 0 {
		port = v
	}
	password, _ := args["password"].(string)
	timeout := 2 * time.Second
	if ms, ok := toInt(args["timeout_ms"]); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	return &Driver{
		password: password,
		tcp:      transport.NewTCP(fmt.Sprintf("%s:%d", host, port), timeout),
	}, nil
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

func (d *Driver) Kind() string { return "pjlink" }

func (d *Driver) Methods() []string {
	return []string{"powerOn", "powerOff", "getStatus", "set_input", "get_lamp_hours"}
}

func (d *Driver) Status(ctx context.Context) (map[string]any, error) {
	return map[string]any{"kind": "pjlink", "authenticated": d.handshakeDone}, nil
}

// ensureHandshake reads the connection greeting exactly once per
// connection and derives the MD5 digest prefix every subsequent
// command on this connection must carry (PJLink class 1 spec).
func (d *Driver) ensureHandshake(ctx context.Context) error {
	if d.handshakeDone {
		return nil
	}
	reply, err := d.tcp.Exchange(ctx, nil, transport.LineTerminated('\r'))
	if err != nil {
		return err
	}
	greeting := strings.TrimRight(string(reply), "\r\n")
	fields := strings.Fields(greeting)
	if len(fields) < 2 || fields[0] != "PJLINK" {
		return common.NewProtocolError(fmt.Sprintf("pjlink: unexpected greeting %q", greeting), nil)
	}
	switch fields[1] {
	case "0":
		d.digestPrefix = ""
	case "1":
		if len(fields) < 3 {
			return common.NewProtocolError("pjlink: auth greeting missing seed", nil)
		}
		sum := md5.Sum([]byte(fields[2] + d.password))
		d.digestPrefix = hex.EncodeToString(sum[:])
	default:
		return common.NewProtocolError(fmt.Sprintf("pjlink: unknown auth flag %q", fields[1]), nil)
	}
	d.handshakeDone = true
	return nil
}

// sendCommand performs one request/response line exchange and returns
// the response with the "%1<CMD>=" echo and trailing CR stripped.
func (d *Driver) sendCommand(ctx context.Context, cmd string) (string, error) {
	if err := d.ensureHandshake(ctx); err != nil {
		return "", err
	}
	line := []byte(d.digestPrefix + cmd + "\r")
	reply, err := d.tcp.Exchange(ctx, line, transport.LineTerminated('\r'))
	if err != nil {
		d.handshakeDone = false
		return "", err
	}
	resp := strings.TrimRight(string(reply), "\r\n")
	idx := strings.Index(resp, "=")
	if idx < 0 {
		return "", common.NewProtocolError(fmt.Sprintf("pjlink: malformed response %q", resp), nil)
	}
	value := resp[idx+1:]
	if strings.HasPrefix(value, "ERR") {
		return "", common.NewProtocolError(fmt.Sprintf("pjlink: device returned %s", value), nil)
	}
	return value, nil
}

func (d *Driver) Execute(ctx context.Context, command string, params map[string]any) (protocol.Value, error) {
	return d.CallMethod(ctx, command, params)
}

func (d *Driver) CallMethod(ctx context.Context, name string, args map[string]any) (protocol.Value, error) {
	switch name {
	case "powerOn":
		_, err := d.sendCommand(ctx, "%1POWR 1")
		return nil, err
	case "powerOff":
		_, err := d.sendCommand(ctx, "%1POWR 0")
		return nil, err
	case "getStatus":
		v, err := d.sendCommand(ctx, "%1POWR ?")
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, common.NewProtocolError("pjlink: non-numeric power status", err)
		}
		return int64(n), nil
	case "set_input":
		input, ok := args["input"].(string)
		if !ok || input == "" {
			return nil, common.NewInvalidArgument("pjlink: set_input requires an \"input\" argument", nil)
		}
		_, err := d.sendCommand(ctx, "%1INPT "+input)
		return nil, err
	case "get_lamp_hours":
		v, err := d.sendCommand(ctx, "%1LAMP ?")
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, common.NewUnsupportedOp(fmt.Sprintf("pjlink: unknown method %q", name), nil)
	}
}

// Write treats deviceID as a power switch: any nonzero value powers
// the projector on, zero powers it off.
func (d *Driver) Write(ctx context.Context, deviceID int, value int64) error {
	if value != 0 {
		_, err := d.CallMethod(ctx, "powerOn", nil)
		return err
	}
	_, err := d.CallMethod(ctx, "powerOff", nil)
	return err
}

// Read returns the projector's raw power status code (0=off, 1=on,
// 2=cooling, 3=warming).
func (d *Driver) Read(ctx context.Context, deviceID int) (int64, error) {
	v, err := d.CallMethod(ctx, "getStatus", nil)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
