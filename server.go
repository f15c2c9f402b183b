// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Server dispatches calls from many connections into one Registry.
type Server struct {
	registry *Registry
	opts     serverOptions
	listener net.Listener
	conns    sync.Map // net.Conn -> struct{}
	mu       sync.Mutex
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a server without a listener. Use ServeConn to run the
// protocol on connections accepted elsewhere.
func NewServer(reg *Registry, opts ...ServerOption) *Server {
	return &Server{
		registry: reg,
		opts:     newServerOptions(opts),
	}
}

// Listen creates a server listening on addr.
func Listen(addr string, reg *Registry, opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := NewServer(reg, opts...)
	s.listener = listener
	return s, nil
}

// Registry returns the registry calls are dispatched to.
func (s *Server) Registry() *Registry { return s.registry }

// SetDispatchHook installs a hook called around each dispatch. It must be
// called before serving starts.
func (s *Server) SetDispatchHook(hook DispatchHook) { s.opts.hook = hook }

// Serve accepts connections until the context is cancelled or Close is
// called, running one goroutine per connection.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("justrpc: server has no listener")
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.opts.logger.Info("serving", "addr", s.listener.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.opts.logger.Warn("accept", "err", err)
			time.Sleep(5 * time.Millisecond)
			continue
		}
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)
	if s.closed.Load() {
		conn.Close()
		return
	}
	s.ServeConn(ctx, conn, conn.RemoteAddr().String())
}

// Close stops accepting, closes every live connection and waits for their
// loops to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	s.wg.Wait()
	return err
}

// Addr returns the listener address
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// dispatch runs one call through the rate limiter, the hook and the
// registry. Handler panics are turned into errors.
func (s *Server) dispatch(ctx context.Context, info DispatchInfo, params Params) (result any, err error) {
	if s.opts.limiter != nil {
		if err := s.opts.limiter.Allow(info.Method); err != nil {
			return nil, err
		}
	}

	var token HookToken
	hookActive := false
	if s.opts.hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.opts.logger.Error("dispatch hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, token = s.opts.hook.OnDispatchStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	result, err = s.invoke(ctx, info.Method, params)
	if err != nil {
		s.opts.logger.Error("call failed", "method", info.Method, "err", err)
	}

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.opts.logger.Error("dispatch hook end panic", "err", rv)
				}
			}()
			s.opts.hook.OnDispatchEnd(ctx, token, info, err)
		}()
	}
	return result, err
}

func (s *Server) invoke(ctx context.Context, method string, params Params) (result any, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			s.opts.logger.Error("handler panic", "method", method, "panic", rv, "stack", string(debug.Stack()))
			result, err = nil, newError(KindPanic, nil, "%v", rv)
		}
	}()
	return s.registry.Call(ctx, method, params)
}
