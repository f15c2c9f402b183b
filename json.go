// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
)

const retryBaseWait = 500 * time.Millisecond

// Option configures a request sent to the HTTP gateway.
type Option func(*Options)

// Options holds the settings collected from a list of Option.
type Options struct {
	headers     http.Header
	queryParams url.Values
	retries     int
	timeout     time.Duration
}

// NewOptions applies options over the defaults: no extra headers, no
// retries, a 30s timeout.
func NewOptions(options []Option) *Options {
	o := &Options{
		headers:     http.Header{},
		queryParams: url.Values{},
		timeout:     DefaultTimeout,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(o *Options) { o.headers.Add(key, value) }
}

// WithQueryParam adds a URL query parameter.
func WithQueryParam(key, value string) Option {
	return func(o *Options) { o.queryParams.Add(key, value) }
}

// WithRetries retries transient transport failures n more times with
// exponential backoff. Calls are not retried by default.
func WithRetries(n int) Option {
	return func(o *Options) { o.retries = n }
}

// WithHTTPTimeout bounds one HTTP round trip.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *Options) { o.timeout = d }
}

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError checks if an error is transient and worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") {
		return true
	}
	return false
}

// SendJSONRequest sends one JSON-RPC 2.0 request to uri and decodes the
// result into reply. A JSON-RPC error response is returned as *json2.Error.
func SendJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	options ...Option,
) error {
	slog.Debug("send json request", "method", method, "uri", uri.String())
	requestBodyBytes, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	ops := NewOptions(options)
	target := *uri
	target.RawQuery = ops.queryParams.Encode()

	var lastErr error
	for attempt := 0; attempt <= ops.retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 500ms, 1s, 2s, ...
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}

		// Create fresh request for each attempt (body buffer is consumed)
		request, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			target.String(),
			bytes.NewBuffer(requestBodyBytes),
		)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		request.Header = ops.headers.Clone()
		request.Header.Set("Content-Type", "application/json")

		resp, err := newHTTPClient(ops.timeout).Do(request)
		if err != nil {
			lastErr = err
			slog.Debug("request attempt failed", "attempt", attempt+1, "err", err, "retryable", isRetryableError(err))
			if isRetryableError(err) {
				continue
			}
			return fmt.Errorf("failed to issue request: %w", err)
		}
		if attempt > 0 {
			slog.Debug("request succeeded", "attempt", attempt+1)
		}

		// A JSON-RPC error body wins over the status code; otherwise any
		// non successful status is an error.
		err = json2.DecodeClientResponse(resp.Body, reply)
		CleanlyCloseBody(resp.Body)
		var jsonErr *json2.Error
		if errors.As(err, &jsonErr) {
			return jsonErr
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("received status code: %d", resp.StatusCode)
		}
		if err != nil {
			return fmt.Errorf("failed to decode client response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to issue request after %d attempts: %w", ops.retries+1, lastErr)
}

// HTTPClient calls the HTTP gateway. It implements Caller.
type HTTPClient struct {
	uri     *url.URL
	codec   Codec
	options []Option
}

// httpCallResult keeps the result undecoded so the codec sees the exact
// wire value.
type httpCallResult struct {
	Result json.RawMessage `json:"result"`
}

// DialHTTP creates a client for the gateway at addr, either a full URL or a
// host:port served by ListenAndServeHTTP. No connection is made until the
// first call.
func DialHTTP(addr string, options ...Option) (*HTTPClient, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr + HTTPPath
	}
	uri, err := url.Parse(addr)
	if err != nil {
		return nil, newError(KindConnection, err, "parse %s: %v", addr, err)
	}
	return &HTTPClient{uri: uri, codec: defaultCodec, options: options}, nil
}

func dialHTTP(ctx context.Context, addr string, o *dialOptions) (Caller, error) {
	c, err := DialHTTP(addr, WithHTTPTimeout(o.timeout))
	if err != nil {
		return nil, err
	}
	c.codec = o.codec
	return c, nil
}

// Call invokes method through the gateway. Server failures are returned as
// *RPCError carrying the gateway's error message.
func (c *HTTPClient) Call(ctx context.Context, method string, params []any, reply any) error {
	if params == nil {
		params = []any{}
	}
	var out httpCallResult
	err := SendJSONRequest(ctx, c.uri, HTTPMethodCall, &HTTPCallArgs{Method: method, Params: params}, &out, c.options...)
	if err != nil {
		var jsonErr *json2.Error
		if errors.As(err, &jsonErr) {
			return &RPCError{Message: jsonErr.Message}
		}
		return newError(KindConnection, err, "%s: %v", method, err)
	}
	if reply == nil || len(out.Result) == 0 {
		return nil
	}
	if err := c.codec.Decode(out.Result, reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// Methods lists the methods registered behind the gateway.
func (c *HTTPClient) Methods(ctx context.Context) ([]string, error) {
	var out HTTPMethodsReply
	if err := SendJSONRequest(ctx, c.uri, HTTPMethodMethods, &HTTPMethodsArgs{}, &out, c.options...); err != nil {
		return nil, err
	}
	return out.Methods, nil
}

// Close is a no-op; every call uses a fresh HTTP connection.
func (c *HTTPClient) Close() error { return nil }
