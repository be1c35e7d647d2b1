// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

// Package driver holds the process-wide registry of protocol
// constructors. Each protocol subpackage registers itself from an
// init() function; the channel runtime never imports a concrete
// driver package, only this registry (spec §9, "no inheritance;
// extension is by adding a variant and registering its constructor").
package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nexusiot/devicegateway/pkg/protocol"
)

var (
	mu    sync.RWMutex
	ctors = map[string]protocol.Constructor{}
)

// Register adds a constructor under the given protocol tag. Called
// from subpackage init() functions; panics on a duplicate tag since
// that can only be a programming error.
func Register(kind string, ctor protocol.Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := ctors[kind]; exists {
		panic(fmt.Sprintf("driver: duplicate registration for kind %q", kind))
	}
	ctors[kind] = ctor
}

// New builds a driver instance for the given protocol tag.
func New(kind string, args map[string]any) (protocol.Driver, error) {
	mu.RLock()
	ctor, ok := ctors[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver: unknown protocol kind %q", kind)
	}
	return ctor(args)
}

// Kinds returns the registered protocol tags, sorted, mostly for
// diagnostics and tests.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(ctors))
	for k := range ctors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
