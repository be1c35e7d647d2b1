// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

// This package boots the device control gateway: it loads the
// channel/node/scene configuration, constructs one actor per enabled
// channel, starts the auto_call poller and exposes the façade's
// twelve operations to whatever adapter embeds this process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexusiot/devicegateway/internal/channel"
	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/config"
	"github.com/nexusiot/devicegateway/internal/driver"
	"github.com/nexusiot/devicegateway/internal/facade"
	"github.com/nexusiot/devicegateway/internal/node"
	"github.com/nexusiot/devicegateway/internal/poll"
	"github.com/nexusiot/devicegateway/internal/scene"

	// Blank-imported so each protocol subpackage's init() registers its
	// constructor with internal/driver before New() is ever called.
	_ "github.com/nexusiot/devicegateway/internal/driver/ibmc"
	_ "github.com/nexusiot/devicegateway/internal/driver/modbus"
	_ "github.com/nexusiot/devicegateway/internal/driver/pjlink"
	_ "github.com/nexusiot/devicegateway/internal/driver/sequencer"
	_ "github.com/nexusiot/devicegateway/internal/driver/wol"
)

const drainTimeout = 5 * time.Second

func main() {
	var confDir string
	flag.StringVar(&confDir, "confdir", "", "Specify an alternate configuration directory.")
	flag.StringVar(&confDir, "c", "", "Specify an alternate configuration directory.")
	flag.Parse()

	if err := run(confDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(confDir string) error {
	cfg, err := config.Load(confDir)
	if err != nil {
		return err
	}

	lc, closeLog, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	channels, err := buildChannels(cfg, lc)
	if err != nil {
		return err
	}

	caches := poll.NewStore()
	pollMgr := poll.NewManager(caches, lc)
	if err := pollMgr.Start(cfg, channels); err != nil {
		return err
	}

	graph := node.NewGraph(cfg.Nodes, channels, caches, lc)
	orchestrator := scene.New(cfg.Scenes, graph, lc)

	// The façade's twelve operations are this process's whole public
	// surface; an HTTP or CLI adapter (out of scope here, see spec §1)
	// would take this value and expose it.
	_ = facade.New(graph, channels, caches, orchestrator, lc)

	lc.Info(fmt.Sprintf("gateway started with %d channel(s), %d node(s), %d scene(s)",
		len(channels), len(cfg.Nodes), len(cfg.Scenes)))

	waitForShutdownSignal(lc)

	pollMgr.Stop()
	drainChannels(channels, lc)
	return nil
}

// buildLogger opens cfg.File (stdout if unset) and returns a
// LoggingClient along with a cleanup func, mirroring the reference
// SDK's per-service logger.Initialize.
func buildLogger(cfg config.LogConfig) (common.LoggingClient, func(), error) {
	if cfg.File == "" {
		return common.NewClient("gateway", os.Stdout, common.ParseLevel(cfg.Level)), func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, common.NewConfigError(fmt.Sprintf("could not open log file %s", cfg.File), err)
	}
	return common.NewClient("gateway", f, common.ParseLevel(cfg.Level)), func() { f.Close() }, nil
}

// buildChannels constructs one driver and one actor per enabled
// channel. The channel's own id is injected into its arguments map so
// drivers that persist state per channel (iBMC's session token) can
// recover it without changing protocol.Constructor's signature.
func buildChannels(cfg *config.Config, lc common.LoggingClient) (map[int]*channel.Runtime, error) {
	out := make(map[int]*channel.Runtime, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if !ch.Enable {
			continue
		}
		args := make(map[string]any, len(ch.Arguments)+1)
		for k, v := range ch.Arguments {
			args[k] = v
		}
		args["channel_id"] = ch.ChannelID

		d, err := driver.New(ch.Statute, args)
		if err != nil {
			return nil, common.NewConfigError(fmt.Sprintf("channel %d: could not build driver %q", ch.ChannelID, ch.Statute), err)
		}
		out[ch.ChannelID] = channel.New(ch.ChannelID, ch.Statute, d, lc, common.DefaultMailboxCapacity)
		lc.Info(fmt.Sprintf("channel %d (%s) started", ch.ChannelID, ch.Statute))
	}
	return out, nil
}

func waitForShutdownSignal(lc common.LoggingClient) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	lc.Info(fmt.Sprintf("received %s, draining channels", s))
}

// drainChannels lets every channel finish its in-flight call and empty
// its mailbox, each bounded by drainTimeout (spec §6 "Exit codes").
func drainChannels(channels map[int]*channel.Runtime, lc common.LoggingClient) {
	for id, rt := range channels {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := rt.Drain(ctx); err != nil {
			lc.Warn(fmt.Sprintf("channel %d did not drain cleanly: %v", id, err))
		}
		cancel()
	}
}
