// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"testing"

	"github.com/nexusiot/devicegateway/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Set(1, "token", "abc123"))

	var got string
	require.NoError(t, s.Get(1, "token", &got))
	assert.Equal(t, "abc123", got)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	var v string
	err := s.Get(1, "missing", &v)
	require.Error(t, err)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestSetPersistsAcrossNewStoreInstance(t *testing.T) {
	dir := t.TempDir()
	s1 := NewStore(dir)
	require.NoError(t, s1.Set(2, "k", 42))

	s2 := NewStore(dir)
	var v int
	require.NoError(t, s2.Get(2, "k", &v))
	assert.Equal(t, 42, v)
}

func TestSetManyAndGetAll(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.SetMany(1, map[string]interface{}{"a": 1, "b": "two"}))

	all, err := s.GetAll(1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRemoveDeletesKey(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Set(1, "k", "v"))
	require.NoError(t, s.Remove(1, "k"))

	var v string
	err := s.Get(1, "k", &v)
	require.Error(t, err)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestRemoveAbsentKeyIsNotAnError(t *testing.T) {
	s := NewStore(t.TempDir())
	assert.NoError(t, s.Remove(1, "never-existed"))
}

func TestStoresAreIsolatedPerChannel(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Set(1, "k", "one"))
	require.NoError(t, s.Set(2, "k", "two"))

	var v1, v2 string
	require.NoError(t, s.Get(1, "k", &v1))
	require.NoError(t, s.Get(2, "k", &v2))
	assert.Equal(t, "one", v1)
	assert.Equal(t, "two", v2)
}
