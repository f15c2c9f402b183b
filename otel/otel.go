// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpcotel provides OpenTelemetry instrumentation for justrpc servers.
// It implements [justrpc.DispatchHook], so TCP, HTTP and gRPC calls are all
// traced and measured the same way.
//
// Usage:
//
//	srv, _ := justrpc.Listen(":4000", reg)
//	rpcotel.Instrument(srv, rpcotel.DefaultConfig())
package rpcotel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mengzhuo/justrpc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "justrpc"

// Config configures OpenTelemetry instrumentation for a server.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts trace context from gateway headers.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator

	EnableTracing    bool
	EnableMetrics    bool
	RecordExceptions bool

	// ServiceName is the rpc.service attribute value. Defaults to "justrpc".
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig enables tracing, metrics and exception recording.
// Providers and propagator are resolved from the global SDK by Instrument.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// Instrument attaches a tracing and metrics hook to server.
func Instrument(server *justrpc.Server, cfg Config) {
	server.SetDispatchHook(NewHook(cfg))
}

// NewHook returns the DispatchHook Instrument installs, for servers that are
// configured with justrpc.WithDispatchHook instead.
func NewHook(cfg Config) justrpc.DispatchHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "justrpc"
	}

	h := &hook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		h.requests, _ = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of RPC requests"),
		)
		h.duration, _ = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of RPC requests"),
		)
	}
	return h
}

type hook struct {
	cfg      Config
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

type spanToken struct {
	span  trace.Span
	start time.Time
}

func (h *hook) OnDispatchStart(ctx context.Context, info justrpc.DispatchInfo) (context.Context, justrpc.HookToken) {
	if h.cfg.Propagator != nil && info.Metadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.Metadata))
	}
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{start: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "justrpc"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Method),
		attribute.String("rpc.justrpc.transport", info.Transport),
		attribute.Int("rpc.justrpc.params", info.NumParams),
	}
	if info.ConnID != "" {
		attrs = append(attrs, attribute.String("rpc.justrpc.conn_id", info.ConnID))
	}
	if info.RequestID != "" {
		attrs = append(attrs, attribute.String("rpc.justrpc.request_id", info.RequestID))
	}
	if info.Peer != "" {
		attrs = append(attrs, attribute.String("net.peer.addr", info.Peer))
	}
	if v := info.Metadata["user_agent"]; v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, "justrpc/"+info.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, start: time.Now()}
}

func (h *hook) OnDispatchEnd(ctx context.Context, token justrpc.HookToken, info justrpc.DispatchInfo, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	if h.cfg.EnableMetrics {
		attrs := metric.WithAttributes(
			attribute.String("rpc.system", "justrpc"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Method),
			attribute.String("rpc.justrpc.transport", info.Transport),
			attribute.String("status", status),
		)
		if h.requests != nil {
			h.requests.Add(ctx, 1, attrs)
		}
		if h.duration != nil {
			h.duration.Record(ctx, time.Since(st.start).Seconds(), attrs)
		}
	}

	if st.span == nil {
		return
	}
	if err != nil {
		st.span.SetStatus(codes.Error, err.Error())
		if h.cfg.RecordExceptions {
			st.span.RecordError(err)
		}
		st.span.SetAttributes(attribute.String("rpc.justrpc.error_kind", errorKind(err)))
	} else {
		st.span.SetStatus(codes.Ok, "")
	}
	st.span.End()
}

func errorKind(err error) string {
	var rpcErr *justrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return fmt.Sprintf("%T", err)
}
