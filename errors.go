// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"errors"
	"fmt"
)

// Error kinds. A kind is the first part of the error string written to the
// wire, so remote callers can tell failures apart without parsing messages.
const (
	KindAlreadyRegistered = "AlreadyRegistered"
	KindNotCallable       = "NotCallable"
	KindNotRegistered     = "NotRegistered"
	KindInvalidRequest    = "InvalidRequest"
	KindInvalidParams     = "InvalidParams"
	KindRateLimited       = "RateLimited"
	KindConnection        = "ConnectionError"
	KindRemoteTimeout     = "RemoteTimeout"
	KindDesynchronized    = "Desynchronized"
	KindClosed            = "Closed"
	KindInvalidResponse   = "InvalidResponse"
	KindPanic             = "Panic"
)

// Sentinels for use with errors.Is. They match any *Error of the same kind.
var (
	ErrAlreadyRegistered = &Error{Kind: KindAlreadyRegistered}
	ErrNotCallable       = &Error{Kind: KindNotCallable}
	ErrNotRegistered     = &Error{Kind: KindNotRegistered}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrInvalidParams     = &Error{Kind: KindInvalidParams}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrConnection        = &Error{Kind: KindConnection}
	ErrRemoteTimeout     = &Error{Kind: KindRemoteTimeout}
	ErrDesynchronized    = &Error{Kind: KindDesynchronized}
	ErrClosed            = &Error{Kind: KindClosed}
	ErrInvalidResponse   = &Error{Kind: KindInvalidResponse}
	ErrPanic             = &Error{Kind: KindPanic}
)

// Error is a local failure of the registry, connection loop or client.
type Error struct {
	Kind    string
	Message string
	Err     error // underlying cause, if any
}

func newError(kind string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind, or any *Error when the
// target has no kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// ErrRPC is a sentinel for use with errors.Is to check whether any error in a
// chain is an *RPCError.
var ErrRPC = &RPCError{}

// RPCError carries the error string a server put in a response.
type RPCError struct {
	Message string
}

func (e *RPCError) Error() string { return e.Message }

// Is supports errors.Is by matching any *RPCError target.
func (e *RPCError) Is(target error) bool {
	_, ok := target.(*RPCError)
	return ok
}

// wireError renders err the way it is written into a response's error field.
func wireError(err error) string {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "Error: " + err.Error()
}
