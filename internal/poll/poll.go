// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusiot/devicegateway/internal/channel"
	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/nexusiot/devicegateway/internal/config"
	"github.com/nexusiot/devicegateway/pkg/protocol"
	"github.com/robfig/cron/v3"
)

// Manager drives every channel's auto_call entries on their
// configured interval, the way the reference SDK's internal/scheduler
// drove ScheduleEvents, generalized from named cron schedules to
// plain millisecond intervals (spec §4.4).
type Manager struct {
	store *Store
	cr    *cron.Cron
	lc    common.LoggingClient
}

func NewManager(store *Store, lc common.LoggingClient) *Manager {
	return &Manager{store: store, cr: cron.New(), lc: lc}
}

// Start schedules one cron job per auto_call entry across all
// channels and begins running them. runtimes must already contain an
// entry for every channel referenced by cfg.
func (m *Manager) Start(cfg *config.Config, runtimes map[int]*channel.Runtime) error {
	for _, ch := range cfg.Channels {
		if !ch.Enable {
			continue
		}
		rt, ok := runtimes[ch.ChannelID]
		if !ok {
			continue
		}
		cache := m.store.For(ch.ChannelID)
		for _, ac := range ch.AutoCall {
			ac := ac
			spec := everySpec(ac.IntervalMs)
			_, err := m.cr.AddFunc(spec, func() {
				m.pollOnce(rt, cache, ac)
			})
			if err != nil {
				return common.NewConfigError(fmt.Sprintf("invalid auto_call interval for channel %d", ch.ChannelID), err)
			}
		}
	}
	m.cr.Start()
	return nil
}

func (m *Manager) Stop() {
	ctx := m.cr.Stop()
	<-ctx.Done()
}

func (m *Manager) pollOnce(rt *channel.Runtime, cache *Cache, ac config.AutoCall) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(common.DefaultTaskTimeoutMs)*time.Millisecond)
	defer cancel()

	now := time.Now()
	raws, err := rt.ReadBlock(ctx, ac.Function, ac.Start, ac.Count)
	if err != nil {
		m.lc.Warn(fmt.Sprintf("auto_call poll failed on channel %d (%s %d..%d): %v", rt.ChannelID, ac.Function, ac.Start, ac.Start+ac.Count, err))
		return
	}
	cache.PutRegisters(ac.Start, raws, now)
}

// everySpec converts a millisecond interval into a robfig/cron
// "@every" spec.
func everySpec(intervalMs int) string {
	if intervalMs <= 0 {
		intervalMs = 1000
	}
	return "@every " + time.Duration(intervalMs*int(time.Millisecond)).String()
}

// ReadThrough implements the read-through contract from spec §4.4:
// a cache hit (when useCache is true) returns immediately; a miss or
// an explicit useCache=false dispatches a direct typed read through
// the channel actor and backfills the cache from it.
func ReadThrough(ctx context.Context, rt *channel.Runtime, cache *Cache, addr uint16, dataType string, useCache bool) (protocol.Value, error) {
	dec, hasDecoder := rt.Decoder()

	if useCache && hasDecoder {
		if width, err := dec.RegisterWidth(dataType); err == nil {
			if raw, _, ok := cache.GetRange(addr, width); ok {
				return dec.DecodeTyped(dataType, raw)
			}
		}
	}

	val, err := rt.ReadTyped(ctx, addr, dataType, false)
	if err != nil {
		return nil, err
	}

	if hasDecoder {
		if raw, encErr := dec.EncodeTyped(dataType, val); encErr == nil {
			cache.PutRegisters(addr, bytesToRegisters(raw), time.Now())
		}
	}
	return val, nil
}

func bytesToRegisters(raw []byte) []uint16 {
	out := make([]uint16, 0, (len(raw)+1)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		out = append(out, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return out
}
