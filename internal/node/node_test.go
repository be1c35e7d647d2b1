// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"testing"

	"github.com/nexusiot/devicegateway/internal/channel"
	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/config"
	"github.com/nexusiot/devicegateway/internal/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDriver struct {
	values map[int]int64
}

func newMemDriver() *memDriver { return &memDriver{values: map[int]int64{}} }

func (d *memDriver) Kind() string { return "mem" }
func (d *memDriver) Execute(ctx context.Context, command string, params map[string]any) (any, error) {
	return nil, common.NewUnsupportedOp("n/a", nil)
}
func (d *memDriver) Write(ctx context.Context, deviceID int, value int64) error {
	d.values[deviceID] = value
	return nil
}
func (d *memDriver) Read(ctx context.Context, deviceID int) (int64, error) {
	return d.values[deviceID], nil
}
func (d *memDriver) Methods() []string                                  { return nil }
func (d *memDriver) Status(ctx context.Context) (map[string]any, error) { return nil, nil }

func testLC() common.LoggingClient { return common.NewClient("t", nil, common.LevelError) }

func buildGraph(nodes []config.Node) (*Graph, *memDriver) {
	d := newMemDriver()
	rt := channel.New(1, "mem", d, testLC(), 8)
	channels := map[int]*channel.Runtime{1: rt}
	return NewGraph(nodes, channels, poll.NewStore(), testLC()), d
}

func TestWriteSetsMirrorOnSuccess(t *testing.T) {
	g, _ := buildGraph([]config.Node{{GlobalID: 1, ChannelID: 1, ID: 1}})
	require.NoError(t, g.Write(context.Background(), 1, 7))

	m, err := g.Mirror(1)
	require.NoError(t, err)
	require.NotNil(t, m.CurrentValue)
	assert.Equal(t, int64(7), *m.CurrentValue)
}

func TestWriteAutoSatisfiesDependency(t *testing.T) {
	expected := int64(1)
	nodes := []config.Node{
		{GlobalID: 1, ChannelID: 1, ID: 1},
		{GlobalID: 2, ChannelID: 1, ID: 2, Depend: []config.Dependency{
			{NodeID: 1, ExpectedValue: &expected, Strategy: "auto"},
		}},
	}
	g, _ := buildGraph(nodes)

	require.NoError(t, g.Write(context.Background(), 2, 1))

	m1, _ := g.Mirror(1)
	m2, _ := g.Mirror(2)
	require.NotNil(t, m1.CurrentValue)
	require.NotNil(t, m2.CurrentValue)
	assert.Equal(t, int64(1), *m1.CurrentValue)
	assert.Equal(t, int64(1), *m2.CurrentValue)
}

func TestWriteManualDependencyNotMetFails(t *testing.T) {
	expected := int64(1)
	nodes := []config.Node{
		{GlobalID: 1, ChannelID: 1, ID: 1},
		{GlobalID: 2, ChannelID: 1, ID: 2, Depend: []config.Dependency{
			{NodeID: 1, ExpectedValue: &expected, Strategy: "manual"},
		}},
	}
	g, _ := buildGraph(nodes)

	err := g.Write(context.Background(), 2, 1)
	require.Error(t, err)
	assert.Equal(t, common.KindDependencyNotMet, common.KindOf(err))
}

func TestWriteDetectsCycleAtRuntime(t *testing.T) {
	v := int64(1)
	nodes := []config.Node{
		{GlobalID: 1, ChannelID: 1, ID: 1, Depend: []config.Dependency{{NodeID: 2, ExpectedValue: &v, Strategy: "auto"}}},
		{GlobalID: 2, ChannelID: 1, ID: 2, Depend: []config.Dependency{{NodeID: 1, ExpectedValue: &v, Strategy: "auto"}}},
	}
	g, _ := buildGraph(nodes)

	err := g.Write(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, common.KindDependencyCycle, common.KindOf(err))
}

func TestReadWithoutDataPointUsesDeviceLocalRead(t *testing.T) {
	nodes := []config.Node{{GlobalID: 1, ChannelID: 1, ID: 1}}
	g, d := buildGraph(nodes)
	d.values[1] = 42

	v, err := g.Read(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}
