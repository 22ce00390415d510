//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package core

import (
	"context"
	"fmt"
)

// Package core defines the error handling types for the GridETL library.
//
// This file contains error handling strategies, function adapters and the error
// taxonomy shared by every pipeline: MissingColumnError, TypeCoercionError,
// NoExportFileError, AuthenticationError and ExternalServiceError.

// ErrorHandler defines how errors are handled during processing.
// Custom error handlers can be used to log, collect, or transform errors.
type ErrorHandler interface {
	// HandleError processes an error that occurred during transformation.
	// Returning a non-nil error will stop the pipeline; returning nil will continue.
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorStrategy defines how to handle transformation errors in the pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
// Allows ordinary functions to be used as error handlers.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}

// MissingColumnError reports a mapped or required column absent from the input.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

// TypeCoercionError reports a field value that could not be converted to the
// declared type.
type TypeCoercionError struct {
	Field string
	Value interface{}
	Type  string
	Err   error
}

func (e *TypeCoercionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot coerce field %q value %v to %s: %v", e.Field, e.Value, e.Type, e.Err)
	}
	return fmt.Sprintf("cannot coerce field %q value %v to %s", e.Field, e.Value, e.Type)
}

func (e *TypeCoercionError) Unwrap() error {
	return e.Err
}

// NoExportFileError reports that no export file was found after an export was triggered.
type NoExportFileError struct {
	Dir     string
	Pattern string
}

func (e *NoExportFileError) Error() string {
	return fmt.Sprintf("no file matching %s in %s", e.Pattern, e.Dir)
}

// AuthenticationError reports a login flow that did not reach the post-login state.
type AuthenticationError struct {
	URL    string
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed at %s: %s", e.URL, e.Reason)
}

// ExternalServiceError wraps a failed call to a reader, loader, notifier or storage backend.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// External wraps err as an ExternalServiceError. It returns nil when err is nil.
func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}
