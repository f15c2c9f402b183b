// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"context"
	"os"
	"runtime"

	"github.com/mengzhuo/justrpc"
)

func sysModule(reg *justrpc.Registry) map[string]justrpc.Handler {
	return map[string]justrpc.Handler{
		"echo": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(1); err != nil {
				return nil, err
			}
			return p.Value(0)
		}),
		"methods": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(0); err != nil {
				return nil, err
			}
			return reg.Methods(), nil
		}),
		"version": justrpc.HandlerFunc(func(context.Context, justrpc.Params) (any, error) {
			return runtime.Version(), nil
		}),
		"platform": justrpc.HandlerFunc(func(context.Context, justrpc.Params) (any, error) {
			return runtime.GOOS + "/" + runtime.GOARCH, nil
		}),
		"pid": justrpc.HandlerFunc(func(context.Context, justrpc.Params) (any, error) {
			return os.Getpid(), nil
		}),
		"hostname": justrpc.HandlerFunc(func(context.Context, justrpc.Params) (any, error) {
			return os.Hostname()
		}),
	}
}
