// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018 IOTech Ltd
// Copyright (c) 2019 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io/ioutil"
	"path"
	"path/filepath"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Load loads the channel/node/scene configuration file from confDir
// (or common.ConfigDirectory if empty) and validates the dependency
// graph it describes. Scenes declared in a sibling scenes.yaml, if
// present, are merged in (see LoadScenes).
func Load(confDir string) (*Config, error) {
	cfg, err := loadConfigFromFile(confDir)
	if err != nil {
		return nil, err
	}

	extraScenes, err := LoadScenes(confDir)
	if err != nil {
		return nil, err
	}
	cfg.Scenes = append(cfg.Scenes, extraScenes...)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFromFile(confDir string) (cfg *Config, err error) {
	if len(confDir) == 0 {
		confDir = common.ConfigDirectory
	}

	p := path.Join(confDir, common.ConfigFileName)
	absPath, err := filepath.Abs(p)
	if err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("could not resolve configuration path %s", p), err)
	}

	// go-toml can panic on deeply malformed input; recover into a
	// regular ConfigError so a bad file never takes the process down
	// before logging is even up.
	defer func() {
		if r := recover(); r != nil {
			err = common.NewConfigError(fmt.Sprintf("invalid TOML in %s: %v", absPath, r), nil)
		}
	}()

	contents, err := ioutil.ReadFile(absPath)
	if err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("could not read configuration file %s", absPath), err)
	}

	cfg = &Config{}
	if err := toml.Unmarshal(contents, cfg); err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("could not parse configuration file %s", absPath), err)
	}

	return cfg, nil
}

// Validate enforces the load-time invariants spec §4.5 calls out:
// unique channel/node ids, nodes referencing declared channels, and
// no dependency cycles.
func Validate(cfg *Config) error {
	channelIDs := make(map[int]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if channelIDs[ch.ChannelID] {
			return common.NewConfigError(fmt.Sprintf("duplicate channel_id %d", ch.ChannelID), nil)
		}
		channelIDs[ch.ChannelID] = true
	}

	nodesByID := make(map[int]Node, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if _, dup := nodesByID[n.GlobalID]; dup {
			return common.NewConfigError(fmt.Sprintf("duplicate node global_id %d", n.GlobalID), nil)
		}
		if !channelIDs[n.ChannelID] {
			return common.NewConfigError(fmt.Sprintf("node %d references unknown channel_id %d", n.GlobalID, n.ChannelID), nil)
		}
		nodesByID[n.GlobalID] = n
	}

	for _, n := range cfg.Nodes {
		if err := checkAcyclic(n.GlobalID, nodesByID, map[int]bool{}); err != nil {
			return err
		}
	}

	return nil
}

func checkAcyclic(id int, nodes map[int]Node, visiting map[int]bool) error {
	if visiting[id] {
		return common.NewConfigError(fmt.Sprintf("dependency cycle detected at node %d", id), nil)
	}
	n, ok := nodes[id]
	if !ok {
		return nil
	}
	visiting[id] = true
	for _, dep := range n.Depend {
		if err := checkAcyclic(dep.NodeID, nodes, visiting); err != nil {
			return errors.WithMessage(err, fmt.Sprintf("via node %d", id))
		}
	}
	delete(visiting, id)
	return nil
}
