// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

// Package ibmc implements the xFusion iBMC Redfish driver (spec §6):
// session-token auth over HTTPS, ComputerSystem.Reset with the
// documented ResetType set, and token persistence/refresh through
// component C9.
package ibmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/driver"
	"github.com/nexusiot/devicegateway/internal/storage"
	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/nexusiot/devicegateway/pkg/protocol"
)

func init() {
	driver.Register("ibmc", newDriver)
}

var resetTypes = map[string]bool{
	"On": true, "ForceOff": true, "GracefulShutdown": true,
	"ForceRestart": true, "Nmi": true, "ForcePowerCycle": true,
}

const systemPath = "/redfish/v1/Systems/1"

// Driver is one iBMC link. The session token is cached in memory and
// mirrored into the durable per-channel store so a restart doesn't
// force a fresh login.
type Driver struct {
	https     *transport.HTTPS
	store     *storage.Store
	channelID int
	username  string
	password  string

	token string
}

func newDriver(args map[string]any) (protocol.Driver, error) {
	host, ok := args["host"].(string)
	if !ok || host == "" {
		return nil, common.NewConfigError("ibmc: missing \"host\" argument", nil)
	}
	username, _ := args["username"].(string)
	password, _ := args["password"].(string)
	channelID, _ := toInt(args["channel_id"])
	timeout := time.Duration(common.DefaultHTTPSTimeoutMs) * time.Millisecond
	if ms, ok := toInt(args["timeout_ms"]); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	d := &Driver{
		https:     transport.NewHTTPS("https://"+host, timeout),
		store:     storage.Default(),
		channelID: channelID,
		username:  username,
		password:  password,
	}

	var token string
	if err := d.store.Get(channelID, "session_token", &token); err == nil {
		d.token = token
	}
	return d, nil
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

func (d *Driver) Kind() string { return "ibmc" }

func (d *Driver) Methods() []string { return []string{"reset"} }

func (d *Driver) Status(ctx context.Context) (map[string]any, error) {
	return map[string]any{"kind": "ibmc", "authenticated": d.token != ""}, nil
}

func (d *Driver) login(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"UserName": d.username, "Password": d.password})
	status, _, headers, err := d.https.Do(ctx, http.MethodPost, "/redfish/v1/SessionService/Sessions",
		map[string]string{"Content-Type": "application/json"}, body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return common.NewProtocolError(fmt.Sprintf("ibmc: login returned status %d", status), nil)
	}
	token := headers.Get("X-Auth-Token")
	if token == "" {
		return common.NewProtocolError("ibmc: login response missing X-Auth-Token", nil)
	}
	d.token = token
	return d.store.Set(d.channelID, "session_token", token)
}

// call issues one authenticated request, logging in first if no token
// is cached and refreshing once on a 401 (spec §6 "refreshed on 401").
func (d *Driver) call(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if d.token == "" {
		if err := d.login(ctx); err != nil {
			return 0, nil, err
		}
	}

	do := func() (int, []byte, error) {
		headers := map[string]string{"X-Auth-Token": d.token, "Content-Type": "application/json"}
		status, respBody, _, err := d.https.Do(ctx, method, path, headers, body)
		return status, respBody, err
	}

	status, respBody, err := do()
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusUnauthorized {
		if err := d.login(ctx); err != nil {
			return 0, nil, err
		}
		status, respBody, err = do()
		if err != nil {
			return 0, nil, err
		}
	}
	return status, respBody, nil
}

func (d *Driver) reset(ctx context.Context, resetType string) error {
	if !resetTypes[resetType] {
		return common.NewInvalidArgument(fmt.Sprintf("ibmc: invalid ResetType %q", resetType), nil)
	}
	body, _ := json.Marshal(map[string]string{"ResetType": resetType})
	status, _, err := d.call(ctx, http.MethodPost, systemPath+"/Actions/ComputerSystem.Reset", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return common.NewProtocolError(fmt.Sprintf("ibmc: reset returned status %d", status), nil)
	}
	return nil
}

func (d *Driver) powerState(ctx context.Context) (string, error) {
	status, body, err := d.call(ctx, http.MethodGet, systemPath, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", common.NewProtocolError(fmt.Sprintf("ibmc: system query returned status %d", status), nil)
	}
	var parsed struct {
		PowerState string `json:"PowerState"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", common.NewProtocolError("ibmc: malformed system response", err)
	}
	return parsed.PowerState, nil
}

func (d *Driver) Execute(ctx context.Context, command string, params map[string]any) (protocol.Value, error) {
	return d.CallMethod(ctx, command, params)
}

func (d *Driver) CallMethod(ctx context.Context, name string, args map[string]any) (protocol.Value, error) {
	switch name {
	case "reset":
		resetType, _ := args["reset_type"].(string)
		return nil, d.reset(ctx, resetType)
	default:
		return nil, common.NewUnsupportedOp(fmt.Sprintf("ibmc: unknown method %q", name), nil)
	}
}

// Write maps a nonzero value to an "On" reset and zero to
// "GracefulShutdown", the generic device-local write path.
func (d *Driver) Write(ctx context.Context, deviceID int, value int64) error {
	if value != 0 {
		return d.reset(ctx, "On")
	}
	return d.reset(ctx, "GracefulShutdown")
}

// Read returns 1 if PowerState is "On", else 0.
func (d *Driver) Read(ctx context.Context, deviceID int) (int64, error) {
	state, err := d.powerState(ctx)
	if err != nil {
		return 0, err
	}
	if state == "On" {
		return 1, nil
	}
	return 0, nil
}
