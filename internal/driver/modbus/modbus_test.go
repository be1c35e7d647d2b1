// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWidth(t *testing.T) {
	d := &Driver{}
	cases := map[string]int{
		"uint16": 1, "int16": 1, "bool": 1,
		"uint32": 2, "int32": 2, "float32": 2, "int32_le": 2,
		"float64": 4,
	}
	for typ, want := range cases {
		got, err := d.RegisterWidth(typ)
		require.NoError(t, err)
		assert.Equal(t, want, got, typ)
	}

	_, err := d.RegisterWidth("nope")
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := &Driver{}
	cases := []struct {
		typ string
		in  any
	}{
		{"uint16", int64(1234)},
		{"int16", int64(-5)},
		{"uint32", int64(70000)},
		{"uint32_le", int64(70000)},
		{"int32", int64(-70000)},
		{"int32_le", int64(-70000)},
		{"float32", 3.5},
		{"float32_le", 3.5},
		{"float64", 123.456},
		{"bool", true},
	}
	for _, c := range cases {
		raw, err := d.EncodeTyped(c.typ, c.in)
		require.NoError(t, err, c.typ)
		got, err := d.DecodeTyped(c.typ, raw)
		require.NoError(t, err, c.typ)

		switch c.typ {
		case "float32", "float32_le":
			assert.InDelta(t, c.in.(float64), got.(float64), 1e-3, c.typ)
		case "float64":
			assert.InDelta(t, c.in.(float64), got.(float64), 1e-9, c.typ)
		default:
			assert.Equal(t, c.in, got, c.typ)
		}
	}
}

func TestWordsFromBitsUnpacksLowBitFirst(t *testing.T) {
	// byte 0b00000101 -> points 0 and 2 are set
	got := wordsFromBits([]byte{0x05}, 4)
	assert.Equal(t, []uint16{1, 0, 1, 0}, got)
}

func TestWordsFromRegisters(t *testing.T) {
	got := wordsFromRegisters([]byte{0x00, 0x0A, 0x01, 0x00})
	assert.Equal(t, []uint16{10, 256}, got)
}
