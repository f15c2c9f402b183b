// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"context"
	"fmt"
)

// Caller is the transport-agnostic client interface. *Client, *HTTPClient
// and *GRPCClient implement it.
type Caller interface {
	// Call makes a synchronous call and decodes the result into reply
	Call(ctx context.Context, method string, params []any, reply any) error

	// Close closes the connection
	Close() error
}

// DialTransport connects to addr using the transport chosen with
// WithTransport (TCP by default).
func DialTransport(ctx context.Context, addr string, opts ...DialOption) (Caller, error) {
	o := newDialOptions(opts)

	transportsMu.RLock()
	dial, ok := transports[o.transport]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	return dial(ctx, addr, o)
}

func dialTCP(ctx context.Context, addr string, o *dialOptions) (Caller, error) {
	c := &Client{addr: addr, opts: o}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
