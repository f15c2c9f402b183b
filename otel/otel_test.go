// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcotel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/mengzhuo/justrpc"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestHook(t *testing.T) (justrpc.DispatchHook, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		mp.Shutdown(context.Background())
	})

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	return NewHook(cfg), recorder, reader
}

func TestHookSpan(t *testing.T) {
	hook, recorder, _ := newTestHook(t)
	info := justrpc.DispatchInfo{
		Method:    "math.add",
		Transport: justrpc.TransportTCP,
		ConnID:    "c1",
		RequestID: "7",
		NumParams: 2,
	}
	ctx, token := hook.OnDispatchStart(context.Background(), info)
	hook.OnDispatchEnd(ctx, token, info, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "justrpc/math.add" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}
	want := map[attribute.Key]string{
		"rpc.method":             "math.add",
		"rpc.justrpc.transport":  "tcp",
		"rpc.justrpc.request_id": "7",
		"rpc.justrpc.conn_id":    "c1",
	}
	got := make(map[attribute.Key]string)
	for _, kv := range span.Attributes() {
		got[kv.Key] = kv.Value.Emit()
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestHookError(t *testing.T) {
	hook, recorder, _ := newTestHook(t)
	info := justrpc.DispatchInfo{Method: "nope", Transport: justrpc.TransportHTTP}
	ctx, token := hook.OnDispatchStart(context.Background(), info)
	hook.OnDispatchEnd(ctx, token, info, justrpc.ErrNotRegistered)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("error was not recorded as an event")
	}
	var kind string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "rpc.justrpc.error_kind" {
			kind = kv.Value.AsString()
		}
	}
	if kind != justrpc.KindNotRegistered {
		t.Errorf("error kind = %q, want %q", kind, justrpc.KindNotRegistered)
	}
}

func TestHookMetrics(t *testing.T) {
	hook, _, reader := newTestHook(t)
	for i, err := range []error{nil, nil, errors.New("boom")} {
		info := justrpc.DispatchInfo{Method: "time.now", Transport: justrpc.TransportTCP, RequestID: string(rune('0' + i))}
		ctx, token := hook.OnDispatchStart(context.Background(), info)
		hook.OnDispatchEnd(ctx, token, info, err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	var sawDuration bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "rpc.server.requests":
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("requests data is %T", m.Data)
				}
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			case "rpc.server.duration":
				sawDuration = true
			}
		}
	}
	if total != 3 {
		t.Errorf("requests = %d, want 3", total)
	}
	if !sawDuration {
		t.Error("no duration histogram recorded")
	}
}

func TestHookTracingDisabled(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableTracing = false
	cfg.EnableMetrics = false
	hook := NewHook(cfg)

	info := justrpc.DispatchInfo{Method: "x"}
	ctx, token := hook.OnDispatchStart(context.Background(), info)
	hook.OnDispatchEnd(ctx, token, info, nil)
	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("got %d spans with tracing disabled", n)
	}
}

func TestInstrumentServer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	reg := justrpc.NewRegistry()
	reg.RegisterFunc("echo", func(_ context.Context, p justrpc.Params) (any, error) {
		return p.Value(0)
	})
	srv := justrpc.NewServer(reg)
	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableMetrics = false
	Instrument(srv, cfg)

	handler, err := justrpc.NewHTTPHandler(srv)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(handler)
	defer ts.Close()

	client, err := justrpc.DialHTTP(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	var got string
	if err := client.Call(context.Background(), "echo", []any{"hi"}, &got); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "hi" {
		t.Errorf("echo = %q", got)
	}
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "justrpc/echo" {
		t.Errorf("span name = %q", spans[0].Name())
	}
}
