// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mengzhuo/justrpc"
)

func stringsModule(*justrpc.Registry) map[string]justrpc.Handler {
	return map[string]justrpc.Handler{
		"upper": unaryString(func(s string) any { return strings.ToUpper(s) }),
		"lower": unaryString(func(s string) any { return strings.ToLower(s) }),
		"trim":  unaryString(func(s string) any { return strings.TrimSpace(s) }),
		"len":   unaryString(func(s string) any { return utf8.RuneCountInString(s) }),
		"split": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(2); err != nil {
				return nil, err
			}
			s, err := p.String(0)
			if err != nil {
				return nil, err
			}
			sep, err := p.String(1)
			if err != nil {
				return nil, err
			}
			return strings.Split(s, sep), nil
		}),
		"join": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(2); err != nil {
				return nil, err
			}
			list, err := p.List(0)
			if err != nil {
				return nil, err
			}
			sep, err := p.String(1)
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(list))
			for i, v := range list {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("sequence item %d: expected string", i)
				}
				parts[i] = s
			}
			return strings.Join(parts, sep), nil
		}),
		"repeat": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(2); err != nil {
				return nil, err
			}
			s, err := p.String(0)
			if err != nil {
				return nil, err
			}
			n, err := p.Int(1)
			if err != nil {
				return nil, err
			}
			if n < 0 || n > 1<<16 {
				return nil, fmt.Errorf("repeat count %d out of range", n)
			}
			return strings.Repeat(s, int(n)), nil
		}),
		"contains": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(2); err != nil {
				return nil, err
			}
			s, err := p.String(0)
			if err != nil {
				return nil, err
			}
			sub, err := p.String(1)
			if err != nil {
				return nil, err
			}
			return strings.Contains(s, sub), nil
		}),
	}
}

func unaryString(fn func(string) any) justrpc.HandlerFunc {
	return func(_ context.Context, p justrpc.Params) (any, error) {
		if err := p.Expect(1); err != nil {
			return nil, err
		}
		s, err := p.String(0)
		if err != nil {
			return nil, err
		}
		return fn(s), nil
	}
}
