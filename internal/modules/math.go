// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"context"
	"errors"
	"math"

	"github.com/mengzhuo/justrpc"
)

var errDivisionByZero = errors.New("division by zero")

func mathModule(*justrpc.Registry) map[string]justrpc.Handler {
	return map[string]justrpc.Handler{
		"add": binary(addInt, func(a, b float64) (any, error) { return a + b, nil }),
		"sub": binary(subInt, func(a, b float64) (any, error) { return a - b, nil }),
		"mul": binary(mulInt, func(a, b float64) (any, error) { return a * b, nil }),
		"div": binary(nil, func(a, b float64) (any, error) {
			if b == 0 {
				return nil, errDivisionByZero
			}
			return a / b, nil
		}),
		"pow": binary(nil, func(a, b float64) (any, error) { return math.Pow(a, b), nil }),
		"sqrt": justrpc.HandlerFunc(func(_ context.Context, p justrpc.Params) (any, error) {
			if err := p.Expect(1); err != nil {
				return nil, err
			}
			x, err := p.Float(0)
			if err != nil {
				return nil, err
			}
			if x < 0 {
				return nil, errors.New("math domain error")
			}
			return math.Sqrt(x), nil
		}),
	}
}

// addInt, subInt and mulInt report false when the result overflows int64.
func addInt(a, b int64) (int64, bool) {
	c := a + b
	return c, (c > a) == (b > 0)
}

func subInt(a, b int64) (int64, bool) {
	c := a - b
	return c, (c < a) == (b > 0)
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return c, false
	}
	return c, c/b == a
}

// binary builds a two argument handler. intOp, when set, is used if both
// arguments are integers and the result fits in an int64; floatOp otherwise.
func binary(intOp func(a, b int64) (int64, bool), floatOp func(a, b float64) (any, error)) justrpc.HandlerFunc {
	return func(_ context.Context, p justrpc.Params) (any, error) {
		if err := p.Expect(2); err != nil {
			return nil, err
		}
		if intOp != nil {
			a, aerr := p.Int(0)
			b, berr := p.Int(1)
			if aerr == nil && berr == nil {
				if c, ok := intOp(a, b); ok {
					return c, nil
				}
			}
		}
		a, err := p.Float(0)
		if err != nil {
			return nil, err
		}
		b, err := p.Float(1)
		if err != nil {
			return nil, err
		}
		return floatOp(a, b)
	}
}
