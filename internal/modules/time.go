// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"context"
	"time"

	"github.com/mengzhuo/justrpc"
)

// now is replaced in tests.
var now = time.Now

// maxSleep bounds time.sleep so one call cannot pin a connection forever.
const maxSleep = time.Hour

func timeModule(*justrpc.Registry) map[string]justrpc.Handler {
	return map[string]justrpc.Handler{
		// time returns seconds since the epoch as a float.
		"time": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(0); err != nil {
				return nil, err
			}
			return float64(now().UnixNano()) / 1e9, nil
		}),
		"unix": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(0); err != nil {
				return nil, err
			}
			return now().Unix(), nil
		}),
		"now": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(0); err != nil {
				return nil, err
			}
			return now().UTC().Format(time.RFC3339Nano), nil
		}),
		"ctime": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			t := now()
			switch p.Len() {
			case 0:
			case 1:
				sec, err := p.Float(0)
				if err != nil {
					return nil, err
				}
				t = time.Unix(0, int64(sec*1e9))
			default:
				return nil, p.Expect(1)
			}
			return t.Format(time.ANSIC), nil
		}),
		"sleep": justrpc.HandlerFunc(func(ctx context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(1); err != nil {
				return nil, err
			}
			sec, err := p.Float(0)
			if err != nil {
				return nil, err
			}
			d := min(time.Duration(sec*float64(time.Second)), maxSleep)
			if d <= 0 {
				return nil, nil
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	}
}
