// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2018 Circutor S.A.
//
// SPDX-License-Identifier: Apache-2.0

package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nexusiot/devicegateway/internal/common"
)

// RegisterWidth returns how many 16-bit registers a typed value
// occupies (spec §6's Modbus type set).
func (d *Driver) RegisterWidth(dataType string) (int, error) {
	switch dataType {
	case "uint16", "int16", "bool":
		return 1, nil
	case "uint32", "uint32_le", "int32", "int32_le", "float32", "float32_le":
		return 2, nil
	case "float64":
		return 4, nil
	default:
		return 0, common.NewInvalidArgument(fmt.Sprintf("modbus: unsupported type %q", dataType), nil)
	}
}

// DecodeTyped turns raw big-endian register bytes (as assembled by
// the poll cache) into a typed value. bool is backed by a holding
// register's low byte rather than a coil, so it shares the same
// register-addressed cache as every other type; coil/discrete access
// is reached separately through auto_call and Execute's raw_read.
func (d *Driver) DecodeTyped(dataType string, raw []byte) (any, error) {
	switch dataType {
	case "uint16":
		return int64(binary.BigEndian.Uint16(raw)), nil
	case "int16":
		return int64(int16(binary.BigEndian.Uint16(raw))), nil
	case "uint32":
		return int64(binary.BigEndian.Uint32(raw)), nil
	case "uint32_le":
		return int64(binary.LittleEndian.Uint32(raw)), nil
	case "int32":
		return int64(int32(binary.BigEndian.Uint32(raw))), nil
	case "int32_le":
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	case "float32":
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case "float32_le":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw))), nil
	case "float64":
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	case "bool":
		return raw[1] != 0, nil
	default:
		return nil, common.NewInvalidArgument(fmt.Sprintf("modbus: unsupported type %q", dataType), nil)
	}
}

// EncodeTyped is DecodeTyped's inverse, used both for write_typed and
// for backfilling the cache after a direct read bypasses it.
func (d *Driver) EncodeTyped(dataType string, value any) ([]byte, error) {
	width, err := d.RegisterWidth(dataType)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, width*2)

	switch dataType {
	case "uint16":
		binary.BigEndian.PutUint16(buf, uint16(asInt64(value)))
	case "int16":
		binary.BigEndian.PutUint16(buf, uint16(int16(asInt64(value))))
	case "uint32":
		binary.BigEndian.PutUint32(buf, uint32(asInt64(value)))
	case "uint32_le":
		binary.LittleEndian.PutUint32(buf, uint32(asInt64(value)))
	case "int32":
		binary.BigEndian.PutUint32(buf, uint32(int32(asInt64(value))))
	case "int32_le":
		binary.LittleEndian.PutUint32(buf, uint32(int32(asInt64(value))))
	case "float32":
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(asFloat64(value))))
	case "float32_le":
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(asFloat64(value))))
	case "float64":
		binary.BigEndian.PutUint64(buf, math.Float64bits(asFloat64(value)))
	case "bool":
		if asBool(value) {
			buf[1] = 1
		}
	default:
		return nil, common.NewInvalidArgument(fmt.Sprintf("modbus: unsupported type %q", dataType), nil)
	}
	return buf, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch n := v.(type) {
	case bool:
		return n
	case int64:
		return n != 0
	case float64:
		return n != 0
	default:
		return false
	}
}

// ReadTyped reads RegisterWidth(dataType) holding registers starting
// at addr and decodes them. useCache is the poll layer's concern, not
// the driver's: by the time a call reaches here it is always a direct
// device read.
func (d *Driver) ReadTyped(ctx context.Context, addr uint16, dataType string, useCache bool) (any, error) {
	width, err := d.RegisterWidth(dataType)
	if err != nil {
		return nil, err
	}
	if err := d.ensureConnected(); err != nil {
		return nil, err
	}
	raw, err := d.client.ReadHoldingRegisters(addr, uint16(width))
	if err != nil {
		return nil, d.noteError(err)
	}
	return d.DecodeTyped(dataType, raw)
}

// WriteTyped encodes value and writes it as one or more holding
// registers (FC06 for a single register, FC16 otherwise).
func (d *Driver) WriteTyped(ctx context.Context, addr uint16, dataType string, value any) error {
	raw, err := d.EncodeTyped(dataType, value)
	if err != nil {
		return err
	}
	if err := d.ensureConnected(); err != nil {
		return err
	}
	width := len(raw) / 2
	if width == 1 {
		_, err = d.client.WriteSingleRegister(addr, binary.BigEndian.Uint16(raw))
	} else {
		_, err = d.client.WriteMultipleRegisters(addr, uint16(width), raw)
	}
	return d.noteError(err)
}

// ReadBlock performs one auto_call bulk read (spec §4.4) and returns
// the block as individual 16-bit words, coil/discrete bits widened to
// whole words so the cache stays uniformly register-shaped.
func (d *Driver) ReadBlock(ctx context.Context, function string, start uint16, count uint16) ([]uint16, error) {
	if err := d.ensureConnected(); err != nil {
		return nil, err
	}
	raw, err := d.readFunction(function, start, count)
	if err != nil {
		return nil, err
	}
	switch function {
	case "holding", "input":
		return wordsFromRegisters(raw.([]byte)), nil
	case "coil", "discrete":
		return wordsFromBits(raw.([]byte), count), nil
	default:
		return nil, common.NewInvalidArgument(fmt.Sprintf("modbus: unsupported auto_call function %q", function), nil)
	}
}

func (d *Driver) readFunction(function string, start uint16, count uint16) (any, error) {
	var raw []byte
	var err error
	switch function {
	case "holding":
		raw, err = d.client.ReadHoldingRegisters(start, count)
	case "input":
		raw, err = d.client.ReadInputRegisters(start, count)
	case "coil":
		raw, err = d.client.ReadCoils(start, count)
	case "discrete":
		raw, err = d.client.ReadDiscreteInputs(start, count)
	default:
		return nil, common.NewInvalidArgument(fmt.Sprintf("modbus: unsupported function %q", function), nil)
	}
	if err != nil {
		return nil, d.noteError(err)
	}
	return raw, nil
}

func (d *Driver) writeFunction(function string, start uint16, values []byte) error {
	var err error
	switch function {
	case "holding":
		_, err = d.client.WriteMultipleRegisters(start, uint16(len(values)/2), values)
	case "coil":
		// FC05 for a single coil, FC15 (bits packed low-bit-first) otherwise.
		if len(values) == 1 {
			v := uint16(0)
			if values[0] != 0 {
				v = 0xFF00
			}
			_, err = d.client.WriteSingleCoil(start, v)
			break
		}
		packed := make([]byte, (len(values)+7)/8)
		for i, b := range values {
			if b != 0 {
				packed[i/8] |= 1 << uint(i%8)
			}
		}
		_, err = d.client.WriteMultipleCoils(start, uint16(len(values)), packed)
	default:
		return common.NewInvalidArgument(fmt.Sprintf("modbus: unsupported write function %q", function), nil)
	}
	return d.noteError(err)
}

func wordsFromRegisters(raw []byte) []uint16 {
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = be16(raw[i*2 : i*2+2])
	}
	return out
}

// wordsFromBits unpacks a Modbus coil/discrete response (one bit per
// point, packed low-bit-first into bytes) into one word per point so
// the cache can address it the same way it addresses registers.
func wordsFromBits(raw []byte, count uint16) []uint16 {
	out := make([]uint16, count)
	for i := uint16(0); i < count; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		if int(byteIdx) >= len(raw) {
			break
		}
		if raw[byteIdx]&(1<<bitIdx) != 0 {
			out[i] = 1
		}
	}
	return out
}

func be16(raw []byte) uint16 { return binary.BigEndian.Uint16(raw) }
