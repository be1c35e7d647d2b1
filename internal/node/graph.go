// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

// Package node maps logical nodes to (channel, device-local id) pairs,
// mirrors each node's last-known state, and resolves the dependency
// predicates a write must satisfy before it is allowed to proceed
// (spec §4.5, components C6 and C7).
package node

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nexusiot/devicegateway/internal/channel"
	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/config"
	"github.com/nexusiot/devicegateway/internal/poll"
)

// Mirror is a node's last-known state (spec §3 "Node value mirror").
type Mirror struct {
	CurrentValue *int64
	Online       bool
	LastUpdated  time.Time
}

func (m Mirror) clone() Mirror { return m }

// Graph holds every configured node, its dependency edges, and its
// live mirror, plus the channel runtimes and poll caches needed to
// actually perform reads and writes.
type Graph struct {
	nodes    map[int]config.Node
	channels map[int]*channel.Runtime
	caches   *poll.Store
	lc       common.LoggingClient

	mu      sync.RWMutex
	mirrors map[int]*Mirror
}

func NewGraph(nodes []config.Node, channels map[int]*channel.Runtime, caches *poll.Store, lc common.LoggingClient) *Graph {
	g := &Graph{
		nodes:    make(map[int]config.Node, len(nodes)),
		channels: channels,
		caches:   caches,
		lc:       lc,
		mirrors:  make(map[int]*Mirror, len(nodes)),
	}
	for _, n := range nodes {
		g.nodes[n.GlobalID] = n
		g.mirrors[n.GlobalID] = &Mirror{}
	}
	return g
}

func (g *Graph) node(globalID int) (config.Node, error) {
	n, ok := g.nodes[globalID]
	if !ok {
		return config.Node{}, common.NewNotFound(fmt.Sprintf("unknown node %d", globalID), nil)
	}
	return n, nil
}

// Mirror returns a snapshot of one node's mirror.
func (g *Graph) Mirror(globalID int) (Mirror, error) {
	if _, err := g.node(globalID); err != nil {
		return Mirror{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mirrors[globalID].clone(), nil
}

// AllMirrors returns a snapshot of every node's mirror, keyed by
// global id, for get_all_node_states (spec §4.8).
func (g *Graph) AllMirrors() map[int]Mirror {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[int]Mirror, len(g.mirrors))
	for id, m := range g.mirrors {
		out[id] = m.clone()
	}
	return out
}

func (g *Graph) setMirror(globalID int, value int64, online bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := value
	g.mirrors[globalID] = &Mirror{CurrentValue: &v, Online: online, LastUpdated: time.Now()}
}

func (g *Graph) setOnline(globalID int, online bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.mirrors[globalID]
	if !ok {
		g.mirrors[globalID] = &Mirror{Online: online, LastUpdated: time.Now()}
		return
	}
	m.Online = online
	m.LastUpdated = time.Now()
}

// Read returns a node's current value: for a node with a data_point,
// it goes through the poll/cache read-through path and applies
// scaling (spec §4.4); otherwise it reads the device-local point
// directly. Either way the mirror is refreshed before returning.
func (g *Graph) Read(ctx context.Context, globalID int) (int64, error) {
	n, err := g.node(globalID)
	if err != nil {
		return 0, err
	}

	rt, ok := g.channels[n.ChannelID]
	if !ok {
		return 0, common.NewNotFound(fmt.Sprintf("node %d references unknown channel %d", globalID, n.ChannelID), nil)
	}

	if n.DataPoint != nil {
		cache := g.caches.For(n.ChannelID)
		raw, err := poll.ReadThrough(ctx, rt, cache, n.DataPoint.Addr, n.DataPoint.Type, true)
		if err != nil {
			g.setOnline(globalID, false)
			return 0, err
		}
		value := applyScale(raw, n.DataPoint.Scale)
		g.setMirror(globalID, value, true)
		return value, nil
	}

	value, err := rt.Read(ctx, n.ID)
	if err != nil {
		g.setOnline(globalID, false)
		return 0, err
	}
	g.setMirror(globalID, value, true)
	return value, nil
}

// applyScale implements spec §4.4's "scaled = raw * scale;
// mirror stores round(scaled)".
func applyScale(raw any, scale *float64) int64 {
	var f float64
	switch v := raw.(type) {
	case int64:
		f = float64(v)
	case float64:
		f = v
	case bool:
		if v {
			f = 1
		}
	default:
		f = 0
	}
	if scale != nil {
		f *= *scale
	}
	return int64(math.Round(f))
}
