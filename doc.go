// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package justrpc implements a line-delimited JSON-RPC (v1.0 style) server and
// client over TCP.
//
// # Wire protocol
//
// Every request and response is one JSON object on one line:
//
//	--> {"method":"math.add","params":[2,3],"id":1}
//	<-- {"error":null,"id":1,"result":5}
//
// A response is the request object with method and params removed and
// result and error added, so unknown keys travel back to the caller. Within
// one connection a response is always written before the next line is read.
// A line that is not valid JSON closes the connection; valid JSON that is not
// an object is skipped.
//
// # Usage
//
// Server usage:
//
//	reg := justrpc.NewRegistry()
//	reg.RegisterFunc("echo", func(ctx context.Context, p justrpc.Params) (any, error) {
//	    return p.Value(0)
//	})
//	srv, err := justrpc.Listen(":4000", reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.Serve(ctx)
//
// Client usage:
//
//	client, err := justrpc.Dial(ctx, "localhost:4000", justrpc.WithTimeout(5*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var s string
//	err = client.Call(ctx, "echo", []any{"hi"}, &s)
//
// A call that times out leaves the connection desynchronised; call Reconnect
// before the next call.
//
// # Gateways
//
// The same registry can be served over JSON-RPC 2.0 on HTTP (NewHTTPHandler)
// and over gRPC with a JSON codec (NewGRPCServer). Both share the server's
// rate limiter and dispatch hook. DialTransport picks the client for a
// transport name.
//
// # Architecture
//
//   - registry.go: method names to handlers
//   - conn.go: the per-connection protocol loop
//   - server.go: accept loop and dispatch
//   - client.go: the TCP client
//   - http.go, json.go: HTTP gateway server and client
//   - grpc.go: gRPC gateway server and client
//   - transport.go, dial.go: transport registry and DialTransport
package justrpc
