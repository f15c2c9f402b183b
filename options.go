// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"log/slog"
	"time"
)

const (
	// DefaultTimeout bounds one client call.
	DefaultTimeout = 30 * time.Second
	// DefaultWriteTimeout bounds writing one response.
	DefaultWriteTimeout = 30 * time.Second
)

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	codec     Codec
	transport string // "tcp", "http", "grpc"
	timeout   time.Duration
}

func newDialOptions(opts []DialOption) *dialOptions {
	o := &dialOptions{
		codec:     defaultCodec,
		transport: DefaultTransport,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCodec sets the codec used for params and replies
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithTransport explicitly sets the transport type for DialTransport
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithTimeout sets the per-call deadline. Zero disables it; the context
// deadline still applies.
func WithTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.timeout = d }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger       *slog.Logger
	hook         DispatchHook
	limiter      *RateLimiter
	idleTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int
}

func newServerOptions(opts []ServerOption) serverOptions {
	o := serverOptions{
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		maxFrameSize: defaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the server logger
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithDispatchHook installs a hook called around each dispatch
func WithDispatchHook(h DispatchHook) ServerOption {
	return func(o *serverOptions) { o.hook = h }
}

// WithRateLimiting rejects calls above the configured rates
func WithRateLimiting(cfg RateLimitConfig) ServerOption {
	return func(o *serverOptions) { o.limiter = NewRateLimiter(cfg) }
}

// WithIdleTimeout closes a connection that sends no complete frame for d.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.idleTimeout = d }
}

// WithWriteTimeout bounds writing one response. Zero disables it.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.writeTimeout = d }
}

// WithMaxFrameSize bounds the length of one request line.
func WithMaxFrameSize(n int) ServerOption {
	return func(o *serverOptions) {
		if n <= 0 {
			n = defaultMaxFrameSize
		}
		o.maxFrameSize = n
	}
}
