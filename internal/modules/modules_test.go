// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mengzhuo/justrpc"
)

func newRegistry(t *testing.T, names ...string) *justrpc.Registry {
	t.Helper()
	reg := justrpc.NewRegistry()
	if err := Register(reg, names...); err != nil {
		t.Fatalf("Register(%v): %v", names, err)
	}
	return reg
}

func TestNames(t *testing.T) {
	want := []string{"math", "strings", "sys", "time"}
	if diff := cmp.Diff(want, Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterUnknown(t *testing.T) {
	if err := Register(justrpc.NewRegistry(), "os"); err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestRegisterTwice(t *testing.T) {
	reg := newRegistry(t, "math")
	err := Register(reg, "math")
	if !errors.Is(err, justrpc.ErrAlreadyRegistered) {
		t.Fatalf("got %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegisterPrefixesNames(t *testing.T) {
	reg := newRegistry(t, " time", "strings")
	for _, name := range []string{"time.sleep", "strings.upper"} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestCalls(t *testing.T) {
	reg := newRegistry(t, "math", "strings", "sys")
	tests := []struct {
		name    string
		method  string
		params  justrpc.Params
		want    any
		wantErr bool
	}{
		{name: "add ints", method: "math.add", params: justrpc.Params{json.Number("2"), json.Number("3")}, want: int64(5)},
		{name: "add floats", method: "math.add", params: justrpc.Params{json.Number("1.5"), json.Number("2")}, want: 3.5},
		{name: "sub", method: "math.sub", params: justrpc.Params{json.Number("2"), json.Number("5")}, want: int64(-3)},
		{name: "mul", method: "math.mul", params: justrpc.Params{json.Number("4"), json.Number("5")}, want: int64(20)},
		{name: "add overflow", method: "math.add", params: justrpc.Params{json.Number("9223372036854775807"), json.Number("1")}, want: 9223372036854775808.0},
		{name: "add huge", method: "math.add", params: justrpc.Params{json.Number("1e30"), json.Number("1")}, want: 1e30},
		{name: "sub overflow", method: "math.sub", params: justrpc.Params{json.Number("-9223372036854775808"), json.Number("1")}, want: -9223372036854775808.0},
		{name: "sub min", method: "math.sub", params: justrpc.Params{json.Number("-1"), json.Number("9223372036854775807")}, want: int64(math.MinInt64)},
		{name: "mul overflow", method: "math.mul", params: justrpc.Params{json.Number("4294967296"), json.Number("4294967296")}, want: 18446744073709551616.0},
		{name: "mul min by -1", method: "math.mul", params: justrpc.Params{json.Number("-9223372036854775808"), json.Number("-1")}, want: 9223372036854775808.0},
		{name: "div", method: "math.div", params: justrpc.Params{json.Number("1"), json.Number("4")}, want: 0.25},
		{name: "div by zero", method: "math.div", params: justrpc.Params{json.Number("1"), json.Number("0")}, wantErr: true},
		{name: "pow", method: "math.pow", params: justrpc.Params{json.Number("2"), json.Number("10")}, want: 1024.0},
		{name: "sqrt", method: "math.sqrt", params: justrpc.Params{json.Number("9")}, want: 3.0},
		{name: "sqrt negative", method: "math.sqrt", params: justrpc.Params{json.Number("-1")}, wantErr: true},
		{name: "add arity", method: "math.add", params: justrpc.Params{json.Number("1")}, wantErr: true},
		{name: "add string", method: "math.add", params: justrpc.Params{"1", json.Number("2")}, wantErr: true},
		{name: "upper", method: "strings.upper", params: justrpc.Params{"abc"}, want: "ABC"},
		{name: "lower", method: "strings.lower", params: justrpc.Params{"ABC"}, want: "abc"},
		{name: "trim", method: "strings.trim", params: justrpc.Params{"  x "}, want: "x"},
		{name: "len runes", method: "strings.len", params: justrpc.Params{"héllo"}, want: 5},
		{name: "split", method: "strings.split", params: justrpc.Params{"a,b,c", ","}, want: []string{"a", "b", "c"}},
		{name: "join", method: "strings.join", params: justrpc.Params{[]any{"a", "b"}, "-"}, want: "a-b"},
		{name: "join non string", method: "strings.join", params: justrpc.Params{[]any{"a", json.Number("1")}, "-"}, wantErr: true},
		{name: "repeat", method: "strings.repeat", params: justrpc.Params{"ab", json.Number("3")}, want: "ababab"},
		{name: "repeat negative", method: "strings.repeat", params: justrpc.Params{"ab", json.Number("-1")}, wantErr: true},
		{name: "contains", method: "strings.contains", params: justrpc.Params{"justrpc", "rpc"}, want: true},
		{name: "echo", method: "sys.echo", params: justrpc.Params{"hi"}, want: "hi"},
		{name: "echo arity", method: "sys.echo", params: justrpc.Params{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Call(context.Background(), tt.method, tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Call(%s) error = %v, wantErr %v", tt.method, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Call(%s) mismatch (-want +got):\n%s", tt.method, diff)
			}
		})
	}
}

func TestSysMethods(t *testing.T) {
	reg := newRegistry(t, "sys")
	got, err := reg.Call(context.Background(), "sys.methods", justrpc.Params{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"sys.echo", "sys.hostname", "sys.methods", "sys.pid", "sys.platform", "sys.version"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sys.methods mismatch (-want +got):\n%s", diff)
	}
}

func TestTime(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	reg := newRegistry(t, "time")
	tests := []struct {
		method string
		params justrpc.Params
		want   any
	}{
		{"time.unix", justrpc.Params{}, fixed.Unix()},
		{"time.time", justrpc.Params{}, float64(fixed.UnixNano()) / 1e9},
		{"time.now", justrpc.Params{}, "2024-03-01T12:00:00.5Z"},
		{"time.ctime", justrpc.Params{json.Number("0")}, time.Unix(0, 0).Format(time.ANSIC)},
	}
	for _, tt := range tests {
		got, err := reg.Call(context.Background(), tt.method, tt.params)
		if err != nil {
			t.Fatalf("%s: %v", tt.method, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.method, diff)
		}
	}
}

func TestSleepHonoursContext(t *testing.T) {
	reg := newRegistry(t, "time")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := reg.Call(ctx, "time.sleep", justrpc.Params{json.Number("10")})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("sleep ignored cancellation, took %s", elapsed)
	}
}
