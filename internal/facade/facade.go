// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

// Package facade exposes the gateway's twelve public operations
// (spec §4.8, component C10) over the channel, poll/cache, node and
// scene layers. It is the single surface a transport adapter (CLI,
// RPC, HTTP — all out of scope per spec §1) would sit in front of.
package facade

import (
	"context"
	"fmt"
	"sort"

	"github.com/nexusiot/devicegateway/internal/channel"
	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/node"
	"github.com/nexusiot/devicegateway/internal/poll"
	"github.com/nexusiot/devicegateway/internal/scene"
	"github.com/nexusiot/devicegateway/pkg/protocol"
)

// ItemResult carries one item's outcome within a batch operation, so
// one bad node or address never fails the whole call (spec §4.8
// "batch operations report per-item failures").
type ItemResult struct {
	Value protocol.Value
	Err   error
}

// BatchReadRequest is one item of a batch_read call: a raw address on
// a channel, independent of the node graph.
type BatchReadRequest struct {
	ChannelID int
	Addr      uint16
	DataType  string
	UseCache  bool
}

// Facade wires the node graph, channel runtimes and scene orchestrator
// together behind the twelve operations.
type Facade struct {
	graph    *node.Graph
	channels map[int]*channel.Runtime
	caches   *poll.Store
	scenes   *scene.Orchestrator
	lc       common.LoggingClient
}

func New(graph *node.Graph, channels map[int]*channel.Runtime, caches *poll.Store, scenes *scene.Orchestrator, lc common.LoggingClient) *Facade {
	return &Facade{graph: graph, channels: channels, caches: caches, scenes: scenes, lc: lc}
}

func (f *Facade) channel(channelID int) (*channel.Runtime, error) {
	rt, ok := f.channels[channelID]
	if !ok {
		return nil, common.NewNotFound(fmt.Sprintf("unknown channel %d", channelID), nil)
	}
	return rt, nil
}

// Read returns one node's current value (spec §4.4).
func (f *Facade) Read(ctx context.Context, globalID int) (int64, error) {
	ctx = common.WithCorrelationID(ctx)
	v, err := f.graph.Read(ctx, globalID)
	f.logOutcome(ctx, "read", err)
	return v, err
}

// ReadMany reads several nodes, reporting a failure per node rather
// than aborting on the first error.
func (f *Facade) ReadMany(ctx context.Context, globalIDs []int) map[int]ItemResult {
	ctx = common.WithCorrelationID(ctx)
	out := make(map[int]ItemResult, len(globalIDs))
	for _, id := range globalIDs {
		v, err := f.graph.Read(ctx, id)
		if err != nil {
			out[id] = ItemResult{Err: err}
			continue
		}
		out[id] = ItemResult{Value: v}
	}
	f.logOutcome(ctx, "read_many", nil)
	return out
}

// Write performs a dependency-aware write to one node (spec §4.5).
func (f *Facade) Write(ctx context.Context, globalID int, value int64) error {
	ctx = common.WithCorrelationID(ctx)
	err := f.graph.Write(ctx, globalID, value)
	f.logOutcome(ctx, "write", err)
	return err
}

// WriteMany writes several nodes independently, reporting a failure
// per node.
func (f *Facade) WriteMany(ctx context.Context, values map[int]int64) map[int]error {
	ctx = common.WithCorrelationID(ctx)
	out := make(map[int]error, len(values))
	for id, v := range values {
		out[id] = f.graph.Write(ctx, id, v)
	}
	f.logOutcome(ctx, "write_many", nil)
	return out
}

// logOutcome records one call's correlation id and outcome at the
// level its severity warrants.
func (f *Facade) logOutcome(ctx context.Context, op string, err error) {
	id := common.CorrelationIDFrom(ctx)
	if err != nil {
		f.lc.Warn(fmt.Sprintf("[%s] %s failed: %v", id, op, err))
		return
	}
	f.lc.Debug(fmt.Sprintf("[%s] %s ok", id, op))
}

// ExecuteCommand invokes a driver's free-form Execute operation on one
// channel (spec §4.1).
func (f *Facade) ExecuteCommand(ctx context.Context, channelID int, command string, params map[string]any) (protocol.Value, error) {
	ctx = common.WithCorrelationID(ctx)
	rt, err := f.channel(channelID)
	if err != nil {
		f.logOutcome(ctx, "execute_command", err)
		return nil, err
	}
	v, err := rt.Execute(ctx, command, params)
	f.logOutcome(ctx, "execute_command", err)
	return v, err
}

// CallMethod invokes a named driver method on one channel (spec §4.1,
// the MethodCaller capability).
func (f *Facade) CallMethod(ctx context.Context, channelID int, name string, args map[string]any) (protocol.Value, error) {
	ctx = common.WithCorrelationID(ctx)
	rt, err := f.channel(channelID)
	if err != nil {
		f.logOutcome(ctx, "call_method", err)
		return nil, err
	}
	v, err := rt.CallMethod(ctx, name, args)
	f.logOutcome(ctx, "call_method", err)
	return v, err
}

// GetMethods lists the methods a channel's driver advertises.
func (f *Facade) GetMethods(ctx context.Context, channelID int) ([]string, error) {
	ctx = common.WithCorrelationID(ctx)
	rt, err := f.channel(channelID)
	if err != nil {
		f.logOutcome(ctx, "get_methods", err)
		return nil, err
	}
	names, err := rt.Methods(ctx)
	f.logOutcome(ctx, "get_methods", err)
	return names, err
}

// BatchRead reads several raw addresses, possibly spread across
// several channels, through the read-through cache (spec §4.4),
// reporting a failure per item.
func (f *Facade) BatchRead(ctx context.Context, reqs []BatchReadRequest) []ItemResult {
	ctx = common.WithCorrelationID(ctx)
	out := make([]ItemResult, len(reqs))
	failed := 0
	for i, req := range reqs {
		rt, err := f.channel(req.ChannelID)
		if err != nil {
			out[i] = ItemResult{Err: err}
			failed++
			continue
		}
		cache := f.caches.For(req.ChannelID)
		v, err := poll.ReadThrough(ctx, rt, cache, req.Addr, req.DataType, req.UseCache)
		out[i] = ItemResult{Value: v, Err: err}
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		f.logOutcome(ctx, "batch_read", fmt.Errorf("%d of %d item(s) failed", failed, len(reqs)))
	} else {
		f.logOutcome(ctx, "batch_read", nil)
	}
	return out
}

// ExecuteScene runs a named scene to completion (spec §4.6).
func (f *Facade) ExecuteScene(ctx context.Context, name string) (scene.Result, error) {
	ctx = common.WithCorrelationID(ctx)
	res, err := f.scenes.Execute(ctx, name)
	f.logOutcome(ctx, "execute_scene", err)
	return res, err
}

// SceneStatus reports whether a scene is currently executing.
func (f *Facade) SceneStatus() scene.Status {
	return f.scenes.Status()
}

// GetAllNodeStates returns every node's current mirror.
func (f *Facade) GetAllNodeStates() map[int]node.Mirror {
	return f.graph.AllMirrors()
}

// GetAllChannelStatus returns every channel's point-in-time status,
// sorted by channel id for deterministic output.
func (f *Facade) GetAllChannelStatus() []channel.Status {
	out := make([]channel.Status, 0, len(f.channels))
	for _, rt := range f.channels {
		out = append(out, rt.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}
