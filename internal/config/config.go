// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package config decodes the gateway's TOML configuration file into
// the structures the rest of the core consumes: channels, nodes,
// scenes and the small set of process-wide settings. Per-protocol
// "arguments" and per-method argument schemas are left as opaque
// maps (§9 design notes) so adding a protocol never requires touching
// this package.
package config

// Config is the top-level decoded configuration document (spec §6).
type Config struct {
	Channels     []Channel      `toml:"channels"`
	Nodes        []Node         `toml:"nodes"`
	Scenes       []Scene        `toml:"scenes"`
	TaskSettings TaskSettings   `toml:"task_settings"`
	WebServer    map[string]any `toml:"web_server"`
	Log          LogConfig      `toml:"log"`
}

// Channel is one configured device link.
type Channel struct {
	ChannelID int            `toml:"channel_id"`
	Enable    bool           `toml:"enable"`
	Statute   string         `toml:"statute"`
	Arguments map[string]any `toml:"arguments"`
	Methods   []MethodMeta   `toml:"methods"`
	AutoCall  []AutoCall     `toml:"auto_call"`
}

// MethodMeta advertises one extra call_method name and its argument
// schema (kept opaque, see package doc).
type MethodMeta struct {
	Name   string         `toml:"name"`
	Schema map[string]any `toml:"schema"`
}

// AutoCall is one periodic background read the channel's poller
// drives via C5.
type AutoCall struct {
	Function   string `toml:"function"` // holding|input|coil|discrete
	Start      uint16 `toml:"start"`
	Count      uint16 `toml:"count"`
	IntervalMs int    `toml:"interval_ms"`
}

// Node is a logical, globally addressable value.
type Node struct {
	GlobalID  int          `toml:"global_id"`
	ChannelID int          `toml:"channel_id"`
	ID        int          `toml:"id"` // device-local id
	Category  string       `toml:"category"`
	Alias     string       `toml:"alias"`
	DataPoint *DataPoint   `toml:"data_point"`
	Depend    []Dependency `toml:"depend"`
}

// DataPoint describes how a node's value is read from a channel's
// polled cache.
type DataPoint struct {
	Type  string   `toml:"type"`
	Addr  uint16   `toml:"addr"`
	Scale *float64 `toml:"scale"`
	Unit  string   `toml:"unit"`
}

// Dependency is one precondition a node's predecessor must satisfy
// before a write to the node is allowed to proceed (§4.5).
type Dependency struct {
	NodeID         int     `toml:"node_id"`
	ExpectedValue  *int64  `toml:"expected_value"`
	ExpectedStatus *bool   `toml:"expected_status"`
	Strategy       string  `toml:"strategy"` // auto|manual
}

// Scene is a named, ordered sequence of node writes.
type Scene struct {
	Name  string      `toml:"name" yaml:"name"`
	Steps []SceneStep `toml:"steps" yaml:"steps"`
}

// SceneStep is one write within a scene, with an optional pause
// applied before it runs.
type SceneStep struct {
	NodeID  int   `toml:"node_id" yaml:"node_id"`
	Value   int64 `toml:"value" yaml:"value"`
	DelayMs int   `toml:"delay_ms" yaml:"delay_ms"`
}

// TaskSettings holds the deadline policy knobs referenced by §5.
type TaskSettings struct {
	TimeoutMs int `toml:"timeout_ms"`
}

// LogConfig configures the process-wide LoggingClient.
type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}
