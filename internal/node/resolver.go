// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"fmt"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/config"
)

// Write performs the dependency-aware write algorithm from spec §4.5.
func (g *Graph) Write(ctx context.Context, globalID int, value int64) error {
	return g.writeResolving(ctx, globalID, value, map[int]bool{})
}

func (g *Graph) writeResolving(ctx context.Context, globalID int, value int64, visiting map[int]bool) error {
	if visiting[globalID] {
		return common.NewDependencyCycle(fmt.Sprintf("node %d visited twice while resolving a write", globalID), nil)
	}
	visiting[globalID] = true

	n, err := g.node(globalID)
	if err != nil {
		return err
	}

	// Dependencies are evaluated in declaration order; the first
	// unmet one determines the recursive action (spec §4.5 tie-break).
	for _, dep := range n.Depend {
		met, err := g.dependencyMet(dep)
		if err != nil {
			return err
		}
		if met {
			continue
		}
		if dep.Strategy != "auto" {
			return common.NewDependencyNotMet(fmt.Sprintf("node %d depends on unmet condition for node %d", globalID, dep.NodeID), nil)
		}
		if dep.ExpectedValue == nil {
			// An online-status dependency can't be auto-satisfied by a
			// write; only a value dependency can.
			return common.NewDependencyNotMet(fmt.Sprintf("node %d depends on an online condition for node %d that cannot be auto-resolved", globalID, dep.NodeID), nil)
		}
		if err := g.writeResolving(ctx, dep.NodeID, *dep.ExpectedValue, visiting); err != nil {
			return err
		}
		break
	}

	rt, ok := g.channels[n.ChannelID]
	if !ok {
		return common.NewNotFound(fmt.Sprintf("node %d references unknown channel %d", globalID, n.ChannelID), nil)
	}
	if err := rt.Write(ctx, n.ID, value); err != nil {
		g.setOnline(globalID, false)
		return err
	}
	g.setMirror(globalID, value, true)
	return nil
}

func (g *Graph) dependencyMet(dep config.Dependency) (bool, error) {
	m, err := g.Mirror(dep.NodeID)
	if err != nil {
		return false, err
	}
	if dep.ExpectedValue != nil {
		return m.CurrentValue != nil && *m.CurrentValue == *dep.ExpectedValue, nil
	}
	if dep.ExpectedStatus != nil {
		return m.Online == *dep.ExpectedStatus, nil
	}
	return true, nil
}
