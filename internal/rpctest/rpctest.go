// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpctest runs txtar scripts against an in-process justrpc server.
//
// Besides the default script commands, scripts can use:
//
//	rpc-serve [module...]        start a server with the named built-in modules
//	rpc-call method [param...]   call method; each param is a JSON value
//	rpc-raw line                 write line on a fresh connection, print the reply
//	rpc-stop                     stop the server
//
// The server address is exported as $RPCADDR.
package rpctest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mengzhuo/justrpc"
	"github.com/mengzhuo/justrpc/internal/modules"
	"golang.org/x/tools/txtar"
	"rsc.io/script"
)

// callTimeout bounds every call a script makes.
const callTimeout = 5 * time.Second

// serverState tracks the server and client a script is talking to.
type serverState struct {
	srv    *justrpc.Server
	done   chan error
	client *justrpc.Client
	log    *slog.Logger
}

func (st *serverState) stop() error {
	if st.client != nil {
		st.client.Close()
		st.client = nil
	}
	if st.srv == nil {
		return nil
	}
	err := st.srv.Close()
	if serveErr := <-st.done; err == nil {
		err = serveErr
	}
	st.srv = nil
	return err
}

// NewEngine returns a script engine with the rpc commands installed.
func NewEngine(output io.Writer) (*script.Engine, func() error) {
	eng := script.NewEngine()
	state := &serverState{
		log: slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	for name, cmd := range rpcCommands(state) {
		eng.Cmds[name] = cmd
	}
	return eng, state.stop
}

// RunFile executes the txtar script in filename, extracting its files into a
// fresh directory under workdir.
func RunFile(ctx context.Context, filename, workdir string, output io.Writer) error {
	a, err := txtar.ParseFile(filename)
	if err != nil {
		return err
	}
	eng, stop := NewEngine(output)
	defer stop()

	s, err := script.NewState(ctx, workdir, os.Environ())
	if err != nil {
		return err
	}
	if err := s.ExtractFiles(a); err != nil {
		return err
	}
	err = eng.Execute(s, filepath.Base(filename), bufio.NewReader(strings.NewReader(string(a.Comment))), output)
	if closeErr := s.CloseAndWait(output); err == nil {
		err = closeErr
	}
	return err
}

func rpcCommands(state *serverState) map[string]script.Cmd {
	return map[string]script.Cmd{
		"rpc-serve": script.Command(script.CmdUsage{
			Summary: "start a justrpc server on a loopback port",
			Args:    "[module...]",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return handleServe(s, state, args...)
		}),
		"rpc-call": script.Command(script.CmdUsage{
			Summary: "call a method on the running server",
			Args:    "method [param...]",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return handleCall(s, state, args...)
		}),
		"rpc-raw": script.Command(script.CmdUsage{
			Summary: "write one raw line and print the reply",
			Args:    "line",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			return handleRaw(s, state, args...)
		}),
		"rpc-stop": script.Command(script.CmdUsage{
			Summary: "stop the running server",
		}, func(s *script.State, args ...string) (script.WaitFunc, error) {
			if err := state.stop(); err != nil {
				return nil, err
			}
			return nil, nil
		}),
	}
}

func handleServe(s *script.State, state *serverState, args ...string) (script.WaitFunc, error) {
	if err := state.stop(); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		args = []string{"sys"}
	}
	reg := justrpc.NewRegistry()
	if err := modules.Register(reg, args...); err != nil {
		return nil, err
	}
	srv, err := justrpc.Listen("127.0.0.1:0", reg, justrpc.WithLogger(state.log))
	if err != nil {
		return nil, err
	}
	state.srv = srv
	state.done = make(chan error, 1)
	go func() { state.done <- srv.Serve(context.Background()) }()

	if err := s.Setenv("RPCADDR", srv.Addr().String()); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleCall(s *script.State, state *serverState, args ...string) (script.WaitFunc, error) {
	if len(args) < 1 {
		return nil, script.ErrUsage
	}
	if state.srv == nil {
		return nil, errors.New("no server running, use rpc-serve first")
	}
	params := make([]any, 0, len(args)-1)
	for _, arg := range args[1:] {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			return nil, fmt.Errorf("param %q: %v", arg, err)
		}
		params = append(params, v)
	}

	ctx, cancel := context.WithTimeout(s.Context(), callTimeout)
	defer cancel()
	if state.client == nil {
		c, err := justrpc.Dial(ctx, state.srv.Addr().String())
		if err != nil {
			return nil, err
		}
		state.client = c
	}

	raw, err := state.client.CallRaw(ctx, args[0], params)
	return func(*script.State) (string, string, error) {
		if err != nil {
			return "", err.Error() + "\n", err
		}
		return string(raw) + "\n", "", nil
	}, nil
}

func handleRaw(s *script.State, state *serverState, args ...string) (script.WaitFunc, error) {
	if len(args) != 1 {
		return nil, script.ErrUsage
	}
	if state.srv == nil {
		return nil, errors.New("no server running, use rpc-serve first")
	}
	var d net.Dialer
	conn, err := d.DialContext(s.Context(), "tcp", state.srv.Addr().String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(callTimeout))

	if _, err := io.WriteString(conn, args[0]+"\n"); err != nil {
		return nil, err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	return func(*script.State) (string, string, error) {
		if errors.Is(err, io.EOF) && line == "" {
			return "", "connection closed\n", nil
		}
		if err != nil {
			return "", err.Error() + "\n", err
		}
		return line, "", nil
	}, nil
}
