// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018-2019 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package common

const (
	ConfigDirectory = "./res"
	ConfigFileName  = "configuration.toml"
	ScenesFileName  = "scenes.yaml"

	StorageDirectory = "data/protocol_storage"

	CorrelationHeader = "X-Correlation-ID"

	// DefaultMailboxCapacity is the recommended per-channel actor mailbox
	// bound from spec §5.
	DefaultMailboxCapacity = 64

	// DefaultTaskTimeoutMs is the deadline of each auto_call poll and the
	// TCP transport's fallback connect/exchange timeout. The decoded
	// task_settings.timeout_ms value is not consulted in its place.
	DefaultTaskTimeoutMs = 5000

	// DefaultHTTPSTimeoutMs is the iBMC/Redfish per-call default from spec §4.2.
	DefaultHTTPSTimeoutMs = 30000
)
