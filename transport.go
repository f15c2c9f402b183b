// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"context"
	"sort"
	"sync"
)

// Transport types
const (
	TransportTCP  = "tcp"  // line-delimited JSON over TCP, default
	TransportHTTP = "http" // JSON-RPC 2.0 over HTTP gateway
	TransportGRPC = "grpc" // gRPC gateway with JSON codec
)

// DefaultTransport is the default transport type (TCP)
const DefaultTransport = TransportTCP

type dialFunc func(ctx context.Context, addr string, o *dialOptions) (Caller, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]dialFunc{
		TransportTCP:  dialTCP,
		TransportHTTP: dialHTTP,
		TransportGRPC: dialGRPC,
	}
)

// RegisterTransport makes an additional transport available to DialTransport.
func RegisterTransport(name string, dial func(ctx context.Context, addr string) (Caller, error)) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = func(ctx context.Context, addr string, _ *dialOptions) (Caller, error) {
		return dial(ctx, addr)
	}
}

// AvailableTransports returns list of available transport types
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[name]
	return ok
}
