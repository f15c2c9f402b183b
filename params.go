// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Params holds the positional arguments of a call, in wire order. Values are
// decoded JSON: nil, bool, json.Number (or float64 from gateways), string,
// []any and map[string]any.
type Params []any

// Len returns the number of arguments.
func (p Params) Len() int { return len(p) }

// Expect fails with ErrInvalidParams unless exactly n arguments were passed.
func (p Params) Expect(n int) error {
	if len(p) != n {
		return newError(KindInvalidParams, nil, "takes %d arguments, %d given", n, len(p))
	}
	return nil
}

func (p Params) at(i int) (any, error) {
	if i < 0 || i >= len(p) {
		return nil, newError(KindInvalidParams, nil, "missing argument %d", i)
	}
	return p[i], nil
}

// Value returns argument i unchanged.
func (p Params) Value(i int) (any, error) { return p.at(i) }

// String returns argument i as a string.
func (p Params) String(i int) (string, error) {
	v, err := p.at(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", newError(KindInvalidParams, nil, "argument %d: want string, got %s", i, typeName(v))
	}
	return s, nil
}

// Int returns argument i as an integer. Numeric strings are not accepted.
func (p Params) Int(i int) (int64, error) {
	v, err := p.at(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		if x, err := n.Int64(); err == nil {
			return x, nil
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, newError(KindInvalidParams, nil, "argument %d: %s is not an integer", i, n)
		}
		if !fitsInt64(f) {
			return 0, newError(KindInvalidParams, nil, "argument %d: %s is out of integer range", i, n)
		}
		return int64(f), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, newError(KindInvalidParams, nil, "argument %d: %v is not an integer", i, n)
		}
		if !fitsInt64(n) {
			return 0, newError(KindInvalidParams, nil, "argument %d: %v is out of integer range", i, n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, newError(KindInvalidParams, nil, "argument %d: want integer, got %s", i, typeName(v))
}

// fitsInt64 reports whether the integral float f converts to int64 exactly.
// 2^63 itself is representable as a float but not as an int64.
func fitsInt64(f float64) bool {
	return f >= math.MinInt64 && f < math.MaxInt64
}

// Float returns argument i as a float.
func (p Params) Float(i int) (float64, error) {
	v, err := p.at(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, newError(KindInvalidParams, err, "argument %d: %s", i, err)
		}
		return f, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, newError(KindInvalidParams, nil, "argument %d: want number, got %s", i, typeName(v))
}

// Bool returns argument i as a bool.
func (p Params) Bool(i int) (bool, error) {
	v, err := p.at(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, newError(KindInvalidParams, nil, "argument %d: want bool, got %s", i, typeName(v))
	}
	return b, nil
}

// List returns argument i as a JSON array.
func (p Params) List(i int) ([]any, error) {
	v, err := p.at(i)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, newError(KindInvalidParams, nil, "argument %d: want list, got %s", i, typeName(v))
	}
	return l, nil
}

// Decode unmarshals argument i into v.
func (p Params) Decode(i int, v any) error {
	arg, err := p.at(i)
	if err != nil {
		return err
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return newError(KindInvalidParams, err, "argument %d: %v", i, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newError(KindInvalidParams, err, "argument %d: %v", i, err)
	}
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number, float64, int, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	}
	return strconv.Quote(fmt.Sprintf("%T", v))
}
