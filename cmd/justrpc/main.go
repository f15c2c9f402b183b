// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command justrpc serves built-in modules over justrpc or calls a method on
// a running server.
//
//	justrpc [flags] address:port                   serve
//	justrpc [flags] address:port method [params]   call
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mengzhuo/justrpc"
	"github.com/mengzhuo/justrpc/internal/modules"
	rpcotel "github.com/mengzhuo/justrpc/otel"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type config struct {
	modules   string
	jsonList  bool
	wrapList  bool
	timeout   float64
	debug     bool
	transport string
	httpAddr  string
	grpcAddr  string
	otel      bool
	rps       float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cfg config
	fs := flag.NewFlagSet("justrpc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.modules, "m", "time", "comma separated modules to serve ("+strings.Join(modules.Names(), ", ")+")")
	fs.BoolVar(&cfg.jsonList, "j", false, "the first param is a JSON array used as the params")
	fs.BoolVar(&cfg.wrapList, "l", false, "send all params as one list param")
	fs.Float64Var(&cfg.timeout, "timeout", 30, "call timeout in seconds")
	fs.BoolVar(&cfg.debug, "d", false, "debug logging")
	fs.StringVar(&cfg.transport, "transport", justrpc.DefaultTransport, "client transport ("+strings.Join(justrpc.AvailableTransports(), ", ")+")")
	fs.StringVar(&cfg.httpAddr, "http", "", "also serve the HTTP gateway on this address")
	fs.StringVar(&cfg.grpcAddr, "grpc", "", "also serve the gRPC gateway on this address")
	fs.BoolVar(&cfg.otel, "otel", false, "export traces and metrics to stderr")
	fs.Float64Var(&cfg.rps, "rps", 0, "server side global calls per second, 0 for unlimited")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: justrpc [flags] address:port [method [params...]]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	addr := fs.Arg(0)
	if fs.NArg() == 1 {
		if err := serve(ctx, addr, cfg, logger, stderr); err != nil {
			logger.Error("serve", "err", err)
			return 1
		}
		return 0
	}

	// The HTTP gateway client only logs through the default logger.
	if cfg.debug {
		slog.SetDefault(logger)
	}
	params, err := parseParams(fs.Args()[2:], cfg.jsonList, cfg.wrapList)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	result, err := call(ctx, addr, fs.Arg(1), params, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, string(result))
	return 0
}

// parseParams turns command line words into call params. Each word that is
// a JSON literal is sent decoded, anything else as a string.
func parseParams(args []string, jsonList, wrap bool) ([]any, error) {
	var params []any
	if jsonList {
		if len(args) != 1 {
			return nil, fmt.Errorf("-j takes exactly one JSON array, got %d params", len(args))
		}
		if err := json.Unmarshal([]byte(args[0]), &params); err != nil {
			return nil, fmt.Errorf("-j: %v", err)
		}
		if params == nil {
			return nil, errors.New("-j: params must be a JSON array")
		}
	} else {
		params = make([]any, 0, len(args))
		for _, arg := range args {
			var v any
			if err := json.Unmarshal([]byte(arg), &v); err != nil {
				v = arg
			}
			params = append(params, v)
		}
	}
	if wrap {
		params = []any{params}
	}
	return params, nil
}

func call(ctx context.Context, addr, method string, params []any, cfg config) (json.RawMessage, error) {
	timeout := time.Duration(cfg.timeout * float64(time.Second))
	c, err := justrpc.DialTransport(ctx, addr,
		justrpc.WithTransport(cfg.transport),
		justrpc.WithTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var result json.RawMessage
	if err := c.Call(ctx, method, params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return result, nil
}

func serve(ctx context.Context, addr string, cfg config, logger *slog.Logger, stderr io.Writer) error {
	reg := justrpc.NewRegistry()
	reg.SetLogger(logger)
	if err := modules.Register(reg, strings.Split(cfg.modules, ",")...); err != nil {
		return err
	}

	opts := []justrpc.ServerOption{justrpc.WithLogger(logger)}
	if cfg.rps > 0 {
		opts = append(opts, justrpc.WithRateLimiting(justrpc.RateLimitConfig{
			GlobalRPS:   cfg.rps,
			GlobalBurst: int(cfg.rps) + 1,
		}))
	}
	srv, err := justrpc.Listen(addr, reg, opts...)
	if err != nil {
		return err
	}

	if cfg.otel {
		shutdown, err := setupOtel(srv, stderr)
		if err != nil {
			srv.Close()
			return err
		}
		defer shutdown()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 3)
	running := 1
	go func() { errc <- srv.Serve(ctx) }()
	if cfg.httpAddr != "" {
		running++
		go func() { errc <- justrpc.ListenAndServeHTTP(ctx, cfg.httpAddr, srv) }()
	}
	if cfg.grpcAddr != "" {
		running++
		go func() { errc <- justrpc.ListenAndServeGRPC(ctx, cfg.grpcAddr, srv) }()
	}

	var firstErr error
	for ; running > 0; running-- {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
			// One listener failing takes the others down with it.
			cancel()
		}
	}
	return firstErr
}

func setupOtel(srv *justrpc.Server, w io.Writer) (func(), error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))

	cfg := rpcotel.DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	rpcotel.Instrument(srv, cfg)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(ctx)
		mp.Shutdown(ctx)
	}, nil
}
