// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"errors"
	"fmt"
	"testing"
)

func TestWireError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("boom"), "Error: boom"},
		{"kind", newError(KindNotRegistered, nil, "method %q not registered", "x"), `NotRegistered: method "x" not registered`},
		{"kind only", &Error{Kind: KindClosed}, "Closed"},
		{"remote passthrough", &RPCError{Message: "upstream said no"}, "upstream said no"},
		{"wrapped remote", fmt.Errorf("proxy: %w", &RPCError{Message: "inner"}), "inner"},
		{"wrapped kind", fmt.Errorf("ctx: %w", ErrInvalidParams), "InvalidParams"},
		{"wrapped local", fmt.Errorf("dispatch: %w", newError(KindNotRegistered, nil, "method %q not registered", "x")), `NotRegistered: method "x" not registered`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wireError(tt.err); got != tt.want {
				t.Errorf("wireError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	cause := errors.New("cause")
	err := newError(KindConnection, cause, "dial")
	if !errors.Is(err, ErrConnection) {
		t.Error("errors.Is(err, ErrConnection) = false")
	}
	if errors.Is(err, ErrRemoteTimeout) {
		t.Error("errors.Is(err, ErrRemoteTimeout) = true")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	if !errors.Is(fmt.Errorf("wrap: %w", err), ErrConnection) {
		t.Error("wrapped kind not matched")
	}
	if errors.Is(err, ErrRPC) {
		t.Error("local error matched ErrRPC")
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		line      string
		notObject bool
		wantErr   bool
		wantCall  bool
	}{
		{line: `{"method":"m","params":[],"id":1}`, wantCall: true},
		{line: `  {"method":"m","params":[],"id":1}  `, wantCall: true},
		{line: `{"method":"m"}`},
		{line: `[1]`, notObject: true},
		{line: `"s"`, notObject: true},
		{line: `{`, wantErr: true},
		{line: `{} {}`, wantErr: true},
	}
	for _, tt := range tests {
		env, err := decodeFrame([]byte(tt.line))
		switch {
		case tt.notObject:
			if !errors.Is(err, errNotObject) {
				t.Errorf("%s: got %v, want errNotObject", tt.line, err)
			}
		case tt.wantErr:
			if err == nil || errors.Is(err, errNotObject) {
				t.Errorf("%s: got %v, want decode error", tt.line, err)
			}
		default:
			if err != nil {
				t.Fatalf("%s: %v", tt.line, err)
			}
			if env.isCall() != tt.wantCall {
				t.Errorf("%s: isCall = %v", tt.line, env.isCall())
			}
		}
	}
}
