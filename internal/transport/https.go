// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
)

// HTTPS is a per-call client for Redfish-style device management
// APIs (iBMC and similar). Self-signed certificates are accepted
// since BMC firmware rarely ships a CA-signed cert (spec §4.2); the
// default per-call timeout is 30s.
type HTTPS struct {
	BaseURL string
	client  *http.Client
}

func NewHTTPS(baseURL string, timeout time.Duration) *HTTPS {
	if timeout <= 0 {
		timeout = time.Duration(common.DefaultHTTPSTimeoutMs) * time.Millisecond
	}
	return &HTTPS{
		BaseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}
}

// Do issues a single HTTP request against BaseURL+path, the shape
// most Redfish calls need (method, path, headers, body) rather than
// the byte-stream Exchange used by the other transports.
func (h *HTTPS) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (status int, respBody []byte, respHeaders http.Header, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.BaseURL+path, reader)
	if err != nil {
		return 0, nil, nil, common.NewInvalidArgument("invalid HTTPS request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, nil, common.NewTimeout("https call timed out", err)
		}
		return 0, nil, nil, common.NewTransportError("https call failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, resp.Header, common.NewTransportError("https body read failed", err)
	}
	return resp.StatusCode, data, resp.Header, nil
}
