// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

// WithCorrelationID attaches a fresh correlation id to ctx if it
// doesn't already carry one, the same role CorrelationHeader plays
// across the reference SDK's HTTP boundary, moved here since this
// gateway's boundary is a Go call, not a request header.
func WithCorrelationID(ctx context.Context) context.Context {
	if _, ok := ctx.Value(correlationKey{}).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, uuid.NewString())
}

// CorrelationIDFrom returns the id ctx carries, or "" if none was set.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
