// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import "context"

// DispatchHook provides observability callpoints around every dispatch.
// Implementations must be safe for concurrent use: each connection
// dispatches from its own goroutine.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, err error)
}

// HookToken is an opaque value returned by OnDispatchStart and passed back to
// OnDispatchEnd. Only meaningful to the DispatchHook that created it.
type HookToken interface{}

// DispatchInfo carries call metadata passed to hooks.
type DispatchInfo struct {
	Method    string // method name as sent by the caller
	Transport string // TransportTCP, TransportHTTP or TransportGRPC
	ConnID    string // per-connection identifier, empty for HTTP
	Peer      string // remote address
	RequestID string // the request id as it appeared on the wire
	NumParams int

	// Metadata carries transport headers relevant to tracing (traceparent,
	// tracestate, user_agent). Nil for TCP calls.
	Metadata map[string]string
}
