// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

// Package wol implements the "computer control" driver (spec §6): a
// Wake-on-LAN magic packet broadcast to power a machine on, and a UDP
// ping/pong heartbeat used for online tracking (a remote machine can't
// be asked to power itself off over WoL, so that direction of Write
// is UnsupportedOperation).
package wol

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/driver"
	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/nexusiot/devicegateway/pkg/protocol"
)

func init() {
	driver.Register("wol", newDriver)
}

const (
	defaultBroadcastPort = 9
	pingTimeout          = 500 * time.Millisecond
	heartbeatStaleAfter  = 10 * time.Second
)

// Driver wakes a machine by MAC address and tracks whether it is
// responding to UDP pings.
type Driver struct {
	mac           [6]byte
	broadcastAddr string
	pingAddr      string
	udp           transport.Transport

	lastHeartbeat time.Time
}

func newDriver(args map[string]any) (protocol.Driver, error) {
	macStr, ok := args["mac"].(string)
	if !ok || macStr == "" {
		return nil, common.NewConfigError("wol: missing \"mac\" argument", nil)
	}
	mac, err := parseMAC(macStr)
	if err != nil {
		return nil, common.NewConfigError("wol: invalid \"mac\" argument", err)
	}

	broadcastAddr, _ := args["broadcast_addr"].(string)
	if broadcastAddr == "" {
		broadcastAddr = fmt.Sprintf("255.255.255.255:%d", defaultBroadcastPort)
	}

	var udp transport.Transport
	pingAddr, _ := args["ping_addr"].(string)
	if pingAddr != "" {
		udp = transport.NewUDP(pingAddr, pingTimeout)
	}

	return &Driver{mac: mac, broadcastAddr: broadcastAddr, pingAddr: pingAddr, udp: udp}, nil
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	s = strings.NewReplacer("-", "", ":", "").Replace(s)
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 6 {
		return mac, fmt.Errorf("expected a 6-byte MAC address, got %q", s)
	}
	copy(mac[:], raw)
	return mac, nil
}

func magicPacket(mac [6]byte) []byte {
	packet := make([]byte, 0, 6+16*6)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, mac[:]...)
	}
	return packet
}

func (d *Driver) Kind() string { return "wol" }

func (d *Driver) Methods() []string { return []string{"wake", "ping"} }

func (d *Driver) Status(ctx context.Context) (map[string]any, error) {
	return map[string]any{"kind": "wol", "online": d.isOnline()}, nil
}

func (d *Driver) isOnline() bool {
	return !d.lastHeartbeat.IsZero() && time.Since(d.lastHeartbeat) < heartbeatStaleAfter
}

func (d *Driver) wake() error {
	if err := transport.Broadcast(d.broadcastAddr, magicPacket(d.mac)); err != nil {
		return err
	}
	return nil
}

// ping sends a UDP probe and, on any reply, records a fresh heartbeat
// (spec §6 "heartbeats accepted for online tracking").
func (d *Driver) ping(ctx context.Context) (bool, error) {
	if d.udp == nil {
		return false, common.NewConfigError("wol: \"ping_addr\" not configured", nil)
	}
	_, err := d.udp.Exchange(ctx, []byte("ping"), nil)
	if err != nil {
		if common.KindOf(err) == common.KindTimeout {
			return false, nil
		}
		return false, err
	}
	d.lastHeartbeat = time.Now()
	return true, nil
}

func (d *Driver) Execute(ctx context.Context, command string, params map[string]any) (protocol.Value, error) {
	return d.CallMethod(ctx, command, params)
}

func (d *Driver) CallMethod(ctx context.Context, name string, args map[string]any) (protocol.Value, error) {
	switch name {
	case "wake":
		return nil, d.wake()
	case "ping":
		alive, err := d.ping(ctx)
		return alive, err
	default:
		return nil, common.NewUnsupportedOp(fmt.Sprintf("wol: unknown method %q", name), nil)
	}
}

// Write only supports powering the machine on; WoL has no remote
// power-off signal.
func (d *Driver) Write(ctx context.Context, deviceID int, value int64) error {
	if value == 0 {
		return common.NewUnsupportedOp("wol: cannot power off a machine remotely", nil)
	}
	return d.wake()
}

// Read reports online status (1/0) from the last accepted heartbeat,
// refreshed by an active ping first.
func (d *Driver) Read(ctx context.Context, deviceID int) (int64, error) {
	if _, err := d.ping(ctx); err != nil {
		return 0, err
	}
	if d.isOnline() {
		return 1, nil
	}
	return 0, nil
}
