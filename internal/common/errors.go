// -*- mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2017-2018 Canonical Ltd
// Copyright (C) 2018-2019 IOTech Ltd
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the client-observable error categories from
// the error taxonomy: invalid input, missing resources, unsupported
// operations, transport failures and the channel/scene/dependency
// conditions specific to this gateway.
type Kind string

const (
	KindInvalidArgument     Kind = "InvalidArgument"
	KindNotFound            Kind = "NotFound"
	KindUnsupportedOp       Kind = "UnsupportedOperation"
	KindTimeout             Kind = "Timeout"
	KindTransportError      Kind = "TransportError"
	KindProtocolError       Kind = "ProtocolError"
	KindDependencyNotMet    Kind = "DependencyNotMet"
	KindDependencyCycle     Kind = "DependencyCycle"
	KindChannelBusy         Kind = "ChannelBusy"
	KindSceneBusy           Kind = "SceneBusy"
	KindConfigError         Kind = "ConfigError"
)

// AppError is a typed, wrapped error carrying one of the Kind values
// above. The cause chain is preserved via github.com/pkg/errors so
// logs keep the original stack while clients only see the Kind.
type AppError struct {
	kind  Kind
	msg   string
	cause error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *AppError) Unwrap() error { return e.cause }

// Kind returns the error category, or "" if err is not an *AppError.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.kind
	}
	return ""
}

func newErr(kind Kind, msg string, cause error) *AppError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &AppError{kind: kind, msg: msg, cause: cause}
}

func NewInvalidArgument(msg string, cause error) *AppError  { return newErr(KindInvalidArgument, msg, cause) }
func NewNotFound(msg string, cause error) *AppError         { return newErr(KindNotFound, msg, cause) }
func NewUnsupportedOp(msg string, cause error) *AppError    { return newErr(KindUnsupportedOp, msg, cause) }
func NewTimeout(msg string, cause error) *AppError          { return newErr(KindTimeout, msg, cause) }
func NewTransportError(msg string, cause error) *AppError   { return newErr(KindTransportError, msg, cause) }
func NewProtocolError(msg string, cause error) *AppError    { return newErr(KindProtocolError, msg, cause) }
func NewDependencyNotMet(msg string, cause error) *AppError { return newErr(KindDependencyNotMet, msg, cause) }
func NewDependencyCycle(msg string, cause error) *AppError  { return newErr(KindDependencyCycle, msg, cause) }
func NewChannelBusy(msg string, cause error) *AppError      { return newErr(KindChannelBusy, msg, cause) }
func NewSceneBusy(msg string, cause error) *AppError        { return newErr(KindSceneBusy, msg, cause) }
func NewConfigError(msg string, cause error) *AppError      { return newErr(KindConfigError, msg, cause) }
