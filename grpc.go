// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// grpcCodecName is the content-subtype the gateway speaks
// (application/grpc+json).
const grpcCodecName = "json"

// GRPCCallMethod is the full gRPC method name of the gateway.
const GRPCCallMethod = "/justrpc.Registry/Call"

func init() {
	encoding.RegisterCodec(grpcCodec{codec: JSONCodec{}})
}

// grpcCodec adapts a Codec to gRPC's codec interface.
type grpcCodec struct {
	codec Codec
}

func (c grpcCodec) Marshal(v any) ([]byte, error)      { return c.codec.Encode(v) }
func (c grpcCodec) Unmarshal(data []byte, v any) error { return c.codec.Decode(data, v) }
func (grpcCodec) Name() string                         { return grpcCodecName }

// GRPCCallRequest is the request message of justrpc.Registry/Call.
type GRPCCallRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// GRPCCallReply is the response message of justrpc.Registry/Call.
type GRPCCallReply struct {
	Result json.RawMessage `json:"result"`
}

// RegistryServer is the server API for the justrpc.Registry service.
type RegistryServer interface {
	Call(ctx context.Context, req *GRPCCallRequest) (*GRPCCallReply, error)
}

var registryServiceDesc = grpc.ServiceDesc{
	ServiceName: "justrpc.Registry",
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    registryCallHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "justrpc",
}

func registryCallHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GRPCCallRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GRPCCallMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegistryServer).Call(ctx, req.(*GRPCCallRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// grpcService implements RegistryServer on top of a Server's dispatch.
type grpcService struct {
	srv *Server
}

func (g *grpcService) Call(ctx context.Context, req *GRPCCallRequest) (*GRPCCallReply, error) {
	params := Params(req.Params)
	if params == nil {
		params = Params{}
	}
	info := DispatchInfo{
		Method:    req.Method,
		Transport: TransportGRPC,
		NumParams: len(params),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		info.Peer = p.Addr.String()
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		info.Metadata = make(map[string]string)
		for _, k := range traceHeaders {
			if v := md.Get(k); len(v) > 0 {
				info.Metadata[k] = v[0]
			}
		}
		if v := md.Get("user-agent"); len(v) > 0 {
			info.Metadata["user_agent"] = v[0]
		}
	}

	result, err := g.srv.dispatch(ctx, info, params)
	if err != nil {
		return nil, status.Error(grpcCode(err), wireError(err))
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, status.Error(codes.Internal, wireError(err))
	}
	return &GRPCCallReply{Result: data}, nil
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrNotRegistered):
		return codes.NotFound
	case errors.Is(err, ErrInvalidParams), errors.Is(err, ErrInvalidRequest):
		return codes.InvalidArgument
	case errors.Is(err, ErrRateLimited):
		return codes.ResourceExhausted
	}
	return codes.Unknown
}

// NewGRPCServer returns a gRPC server exposing srv's registry as the
// justrpc.Registry service.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&registryServiceDesc, &grpcService{srv: srv})
	return gs
}

// ListenAndServeGRPC serves the gRPC gateway for srv on addr until ctx is
// cancelled.
func ListenAndServeGRPC(ctx context.Context, addr string, srv *Server) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	gs := NewGRPCServer(srv)
	stop := context.AfterFunc(ctx, gs.GracefulStop)
	defer stop()

	srv.opts.logger.Info("serving grpc gateway", "addr", listener.Addr().String())
	return gs.Serve(listener)
}

// GRPCClient calls the gRPC gateway. It implements Caller.
type GRPCClient struct {
	conn    *grpc.ClientConn
	codec   Codec
	timeout time.Duration
}

// DialGRPC creates a client for the gateway at addr. The connection is
// established lazily by the first call.
func DialGRPC(ctx context.Context, addr string, opts ...DialOption) (*GRPCClient, error) {
	o := newDialOptions(opts)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcCodecName)),
	)
	if err != nil {
		return nil, newError(KindConnection, err, "grpc dial: %v", err)
	}
	return &GRPCClient{conn: conn, codec: o.codec, timeout: o.timeout}, nil
}

func dialGRPC(ctx context.Context, addr string, o *dialOptions) (Caller, error) {
	return DialGRPC(ctx, addr, WithCodec(o.codec), WithTimeout(o.timeout))
}

// Call invokes method through the gateway. Server failures are returned as
// *RPCError carrying the gateway's status message.
func (c *GRPCClient) Call(ctx context.Context, method string, params []any, reply any) error {
	if params == nil {
		params = []any{}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var out GRPCCallReply
	err := c.conn.Invoke(ctx, GRPCCallMethod, &GRPCCallRequest{Method: method, Params: params}, &out)
	if err != nil {
		st, _ := status.FromError(err)
		switch st.Code() {
		case codes.DeadlineExceeded:
			return newError(KindRemoteTimeout, err, "%s: %s", method, st.Message())
		case codes.Unavailable, codes.Canceled:
			return newError(KindConnection, err, "%s: %s", method, st.Message())
		}
		return &RPCError{Message: st.Message()}
	}
	if reply == nil || len(out.Result) == 0 {
		return nil
	}
	if err := c.codec.Decode(out.Result, reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// Close closes the connection
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
