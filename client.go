// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Client calls methods on a remote server over one TCP connection. Calls are
// serialised: the protocol matches a response to a request only by order, so
// a call is written only after the previous one has completed.
//
// A call that times out leaves the connection desynchronised (the server may
// still write the stale response later). Every further call fails with
// ErrDesynchronized until Reconnect is called.
type Client struct {
	addr string
	opts *dialOptions

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	broken error
	closed bool

	nextID atomic.Uint64
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Client, error) {
	c := &Client{
		addr: addr,
		opts: newDialOptions(opts),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return newError(KindConnection, err, "dial %s: %v", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.broken = nil
	return nil
}

// ID returns the id of the most recent call attempt. It increases by one on
// every attempt, whether the call succeeds or not.
func (c *Client) ID() uint64 { return c.nextID.Load() }

// Call invokes method with params and decodes the result into reply, which
// may be nil. A server-side failure is returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params []any, reply any) error {
	result, err := c.CallRaw(ctx, method, params)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	if err := c.opts.codec.Decode(result, reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// Invoke calls method with args and returns the decoded result. Numbers are
// returned as json.Number.
func (c *Client) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	var result any
	if err := c.Call(ctx, method, args, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CallRaw invokes method and returns the result as it appeared on the wire.
func (c *Client) CallRaw(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, newError(KindClosed, nil, "client closed")
	}
	if c.broken != nil {
		return nil, newError(KindDesynchronized, c.broken, "connection must be re-established after: %v", c.broken)
	}
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)

	var deadline time.Time
	if c.opts.timeout > 0 {
		deadline = time.Now().Add(c.opts.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		watching := make(chan struct{})
		go func() {
			defer close(watching)
			select {
			case <-done:
				c.conn.SetDeadline(aLongTimeAgo)
			case <-stop:
			}
		}()
		defer func() {
			close(stop)
			<-watching
		}()
	}

	if err := writeFrame(c.conn, Request{Method: method, ID: id, Params: params}); err != nil {
		return nil, c.fail(ctx, method, err)
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, c.fail(ctx, method, err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		c.broken = err
		return nil, newError(KindInvalidResponse, err, "decode response: %v", err)
	}
	if len(resp.ID) > 0 && !bytes.Equal(bytes.TrimSpace(resp.ID), []byte(strconv.FormatUint(id, 10))) {
		c.broken = fmt.Errorf("response id %s for request %d", resp.ID, id)
		return nil, newError(KindDesynchronized, nil, "%v", c.broken)
	}
	if msg, ok := responseError(resp.Error); ok {
		return nil, &RPCError{Message: msg}
	}
	if len(resp.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Result, nil
}

// fail classifies a transport failure and marks the connection unusable.
func (c *Client) fail(ctx context.Context, method string, err error) error {
	c.broken = err
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return newError(KindRemoteTimeout, ctxErr, "%s: no response before deadline", method)
		}
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindRemoteTimeout, err, "%s: no response within %s", method, c.opts.timeout)
	}
	if errors.Is(err, io.EOF) {
		return newError(KindConnection, err, "%s: connection closed by server", method)
	}
	return newError(KindConnection, err, "%s: %v", method, err)
}

// responseError extracts the error field of a response. Falsy JSON values
// (null, false, 0, "", [] and {}) mean no error.
func responseError(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw), true
	}
	switch v := v.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case bool:
		return string(raw), v
	case json.Number:
		f, err := v.Float64()
		return string(raw), err != nil || f != 0
	case []any:
		return string(raw), len(v) != 0
	case map[string]any:
		return string(raw), len(v) != 0
	}
	return string(raw), true
}

// Reconnect closes the current connection and dials a new one. Responses
// still in flight on the old connection are discarded with it.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return newError(KindClosed, nil, "client closed")
	}
	c.conn.Close()
	if err := c.connect(ctx); err != nil {
		c.broken = err
		return err
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
