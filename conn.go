// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// serverConn is the protocol state of one connection.
type serverConn struct {
	srv  *Server
	rwc  io.ReadWriteCloser
	id   string
	peer string
	log  *slog.Logger
}

// ServeConn runs the protocol loop on rwc until the peer closes it, a frame
// is not valid JSON, a transport error occurs or ctx is cancelled. Requests
// are handled strictly one at a time: the response to a frame is written
// before the next frame is read. rwc is closed when ServeConn returns.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser, peer string) {
	defer rwc.Close()
	stop := context.AfterFunc(ctx, func() { rwc.Close() })
	defer stop()

	c := &serverConn{
		srv:  s,
		rwc:  rwc,
		id:   uuid.NewString(),
		peer: peer,
	}
	c.log = s.opts.logger.With("conn", c.id, "peer", peer)
	c.log.Debug("new connection")

	scanner := bufio.NewScanner(rwc)
	scanner.Buffer(make([]byte, 0, min(64*1024, s.opts.maxFrameSize)), s.opts.maxFrameSize)

	for {
		c.armRead()
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				if ctx.Err() == nil && !s.closed.Load() {
					c.log.Warn("read", "err", err)
				}
				return
			}
			c.log.Info("connection closed")
			return
		}
		line := scanner.Bytes()
		c.log.Debug("read", "bytes", len(line))

		env, err := decodeFrame(line)
		if errors.Is(err, errNotObject) {
			c.log.Warn("not valid rpc request", "frame", string(line))
			continue
		}
		if err != nil {
			c.log.Debug("decode frame", "err", err)
			return
		}

		c.exchange(ctx, env)

		if err := c.write(env); err != nil {
			c.log.Warn("write", "err", err)
			return
		}
	}
}

// exchange fills in result and error for one decoded object.
func (c *serverConn) exchange(ctx context.Context, env envelope) {
	if !env.isCall() {
		env.invalid()
		return
	}
	requestID := string(env[keyID])
	method, params, err := env.take()
	if err != nil {
		env.setResult(nil, err)
		return
	}
	result, err := c.srv.dispatch(ctx, DispatchInfo{
		Method:    method,
		Transport: TransportTCP,
		ConnID:    c.id,
		Peer:      c.peer,
		RequestID: requestID,
		NumParams: len(params),
	}, params)
	env.setResult(result, err)
}

func (c *serverConn) armRead() {
	d, ok := c.rwc.(readDeadliner)
	if !ok || c.srv.opts.idleTimeout <= 0 {
		return
	}
	d.SetReadDeadline(time.Now().Add(c.srv.opts.idleTimeout))
}

func (c *serverConn) write(env envelope) error {
	if d, ok := c.rwc.(writeDeadliner); ok && c.srv.opts.writeTimeout > 0 {
		d.SetWriteDeadline(time.Now().Add(c.srv.opts.writeTimeout))
	}
	return writeFrame(c.rwc, env)
}
