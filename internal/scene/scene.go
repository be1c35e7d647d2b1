// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

// Package scene implements the scene orchestrator (spec §4.6,
// component C8): at most one scene executes at a time; each step is
// an optionally delayed node write, and step failures are recorded
// rather than aborting the run.
package scene

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/config"
)

// Writer is the subset of node.Graph the orchestrator needs; kept as
// an interface so scenes can be tested without a full channel stack.
type Writer interface {
	Write(ctx context.Context, globalID int, value int64) error
}

// StepFailure records one failed step without aborting the scene.
type StepFailure struct {
	StepIndex int
	NodeID    int
	Error     string
}

// Result is execute_scene's return value (spec §4.8).
type Result struct {
	OK       bool
	Failures []StepFailure
}

// Status is scene_status()'s return value.
type Status struct {
	Executing   bool
	CurrentName string
	StartedAt   time.Time
}

// Orchestrator owns the single process-wide scene lock.
type Orchestrator struct {
	scenes map[string]config.Scene
	graph  Writer
	lc     common.LoggingClient

	mu          sync.Mutex
	executing   bool
	currentName string
	startedAt   time.Time
}

func New(scenes []config.Scene, graph Writer, lc common.LoggingClient) *Orchestrator {
	m := make(map[string]config.Scene, len(scenes))
	for _, s := range scenes {
		m[s.Name] = s
	}
	return &Orchestrator{scenes: m, graph: graph, lc: lc}
}

// Execute runs the named scene's steps in declaration order. Only one
// scene may execute at a time across the whole process (spec §4.6);
// a concurrent attempt returns SceneBusy without running anything.
func (o *Orchestrator) Execute(ctx context.Context, name string) (Result, error) {
	scn, ok := o.scenes[name]
	if !ok {
		return Result{}, common.NewNotFound(fmt.Sprintf("unknown scene %q", name), nil)
	}

	if !o.tryStart(name) {
		return Result{}, common.NewSceneBusy("a scene is already executing", nil)
	}
	defer o.clear()

	var failures []StepFailure
	for i, step := range scn.Steps {
		if step.DelayMs > 0 {
			if err := sleep(ctx, time.Duration(step.DelayMs)*time.Millisecond); err != nil {
				failures = append(failures, StepFailure{StepIndex: i, NodeID: step.NodeID, Error: err.Error()})
				continue
			}
		}
		if err := o.graph.Write(ctx, step.NodeID, step.Value); err != nil {
			failures = append(failures, StepFailure{StepIndex: i, NodeID: step.NodeID, Error: err.Error()})
			o.lc.Warn(fmt.Sprintf("scene %s step %d (node %d) failed: %v", name, i, step.NodeID, err))
			continue
		}
	}

	return Result{OK: true, Failures: failures}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) tryStart(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.executing {
		return false
	}
	o.executing = true
	o.currentName = name
	o.startedAt = time.Now()
	return true
}

// clear releases the scene lock. Deferred from Execute so it runs on
// every exit path, including an unrecovered panic from a step.
func (o *Orchestrator) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executing = false
	o.currentName = ""
}

// Status reports whether a scene is currently executing (spec §4.8).
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{Executing: o.executing, CurrentName: o.currentName, StartedAt: o.startedAt}
}
