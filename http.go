// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	rpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/klauspost/compress/gzhttp"
)

// HTTPPath is where ListenAndServeHTTP mounts the gateway.
const HTTPPath = "/rpc"

// HTTP gateway method names.
const (
	HTTPMethodCall    = "Registry.Call"
	HTTPMethodMethods = "Registry.Methods"
)

// HTTPCallArgs are the params of Registry.Call.
type HTTPCallArgs struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// HTTPCallReply is the result of Registry.Call.
type HTTPCallReply struct {
	Result any `json:"result"`
}

// HTTPMethodsArgs are the (empty) params of Registry.Methods.
type HTTPMethodsArgs struct{}

// HTTPMethodsReply is the result of Registry.Methods.
type HTTPMethodsReply struct {
	Methods []string `json:"methods"`
}

// RegistryService exposes a server's registry as a JSON-RPC 2.0 service.
// Calls go through the same rate limiter and dispatch hook as TCP calls.
type RegistryService struct {
	srv *Server
}

// Call dispatches one call. Failures become JSON-RPC errors whose message
// is the same string the TCP protocol puts in the error field.
func (s *RegistryService) Call(r *http.Request, args *HTTPCallArgs, reply *HTTPCallReply) error {
	params := Params(args.Params)
	if params == nil {
		params = Params{}
	}
	result, err := s.srv.dispatch(r.Context(), DispatchInfo{
		Method:    args.Method,
		Transport: TransportHTTP,
		Peer:      r.RemoteAddr,
		NumParams: len(params),
		Metadata:  httpMetadata(r.Header),
	}, params)
	if err != nil {
		return &json2.Error{Code: json2.E_SERVER, Message: wireError(err)}
	}
	reply.Result = result
	return nil
}

// traceHeaders are copied from the request into DispatchInfo.Metadata.
var traceHeaders = []string{"traceparent", "tracestate"}

func httpMetadata(h http.Header) map[string]string {
	md := make(map[string]string, len(traceHeaders)+1)
	for _, k := range traceHeaders {
		if v := h.Get(k); v != "" {
			md[k] = v
		}
	}
	if ua := h.Get("User-Agent"); ua != "" {
		md["user_agent"] = ua
	}
	return md
}

// Methods lists the registered method names.
func (s *RegistryService) Methods(r *http.Request, args *HTTPMethodsArgs, reply *HTTPMethodsReply) error {
	reply.Methods = s.srv.registry.Methods()
	return nil
}

// NewHTTPHandler returns a gzip-capable handler serving srv's registry over
// JSON-RPC 2.0 (POST, Content-Type application/json).
func NewHTTPHandler(srv *Server) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&RegistryService{srv: srv}, "Registry"); err != nil {
		return nil, err
	}
	return gzhttp.GzipHandler(s), nil
}

// ListenAndServeHTTP serves the HTTP gateway for srv on addr until ctx is
// cancelled.
func ListenAndServeHTTP(ctx context.Context, addr string, srv *Server) error {
	handler, err := NewHTTPHandler(srv)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(HTTPPath, handler)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	hs := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(shutdownCtx)
	})
	defer stop()

	srv.opts.logger.Info("serving http gateway", "addr", listener.Addr().String(), "path", HTTPPath)
	if err := hs.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
