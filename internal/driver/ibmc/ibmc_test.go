// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package ibmc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nexusiot/devicegateway/internal/storage"
	"github.com/nexusiot/devicegateway/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, requireReauth bool) (*httptest.Server, *int) {
	t.Helper()
	authFailures := 0
	validToken := "abc123"

	mux := http.NewServeMux()
	mux.HandleFunc("/redfish/v1/SessionService/Sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Auth-Token", validToken)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/redfish/v1/Systems/1/Actions/ComputerSystem.Reset", func(w http.ResponseWriter, r *http.Request) {
		if requireReauth && r.Header.Get("X-Auth-Token") != validToken {
			authFailures++
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/redfish/v1/Systems/1", func(w http.ResponseWriter, r *http.Request) {
		if requireReauth && r.Header.Get("X-Auth-Token") != validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"PowerState": "On"})
	})

	srv := httptest.NewTLSServer(mux)
	return srv, &authFailures
}

func newTestDriver(srv *httptest.Server, dir string) *Driver {
	return &Driver{
		https:     transport.NewHTTPS(srv.URL, time.Second),
		store:     storage.NewStore(dir),
		channelID: 1,
		username:  "admin",
		password:  "pw",
	}
}

func reset(d *Driver, resetType string) error {
	_, err := d.CallMethod(context.Background(), "reset", map[string]any{"reset_type": resetType})
	return err
}

func TestResetLogsInOnFirstCall(t *testing.T) {
	srv, _ := newTestServer(t, false)
	defer srv.Close()
	d := newTestDriver(srv, t.TempDir())

	require.NoError(t, reset(d, "On"))
	assert.NotEmpty(t, d.token)
}

func TestResetRejectsInvalidType(t *testing.T) {
	srv, _ := newTestServer(t, false)
	defer srv.Close()
	d := newTestDriver(srv, t.TempDir())

	require.Error(t, reset(d, "Bogus"))
}

func TestReadReturnsPowerState(t *testing.T) {
	srv, _ := newTestServer(t, false)
	defer srv.Close()
	d := newTestDriver(srv, t.TempDir())

	v, err := d.Read(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestSessionTokenPersistsAcrossDriverInstances(t *testing.T) {
	srv, _ := newTestServer(t, false)
	defer srv.Close()
	dir := t.TempDir()

	d1 := newTestDriver(srv, dir)
	require.NoError(t, reset(d1, "On"))

	d2 := newTestDriver(srv, dir)
	var token string
	require.NoError(t, d2.store.Get(1, "session_token", &token))
	assert.Equal(t, d1.token, token)
}

func TestReauthenticatesOn401(t *testing.T) {
	srv, failures := newTestServer(t, true)
	defer srv.Close()
	d := newTestDriver(srv, t.TempDir())
	d.token = "stale-token"

	require.NoError(t, reset(d, "On"))
	assert.Equal(t, 1, *failures)
}
