// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

func TestServerConcurrentConnections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := startServer(t, testRegistry(t))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := Dial(ctx, srv.Addr().String())
			if err != nil {
				errs <- err
				return
			}
			defer client.Close()
			for j := 0; j < 10; j++ {
				var sum int
				if err := client.Call(ctx, "add", []any{i, j}, &sum); err != nil {
					errs <- err
					return
				}
				if sum != i+j {
					errs <- fmt.Errorf("add(%d, %d) = %d", i, j, sum)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestServerBlockedConnectionDoesNotBlockOthers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := testRegistry(t)
	release := make(chan struct{})
	reg.RegisterFunc("block", func(context.Context, Params) (any, error) {
		<-release
		return nil, nil
	})
	srv := startServer(t, reg)
	defer close(release)

	blocked, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer blocked.Close()
	io.WriteString(blocked, `{"method":"block","params":[],"id":1}`+"\n")

	client, err := Dial(ctx, srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if got, err := client.Invoke(ctx, "echo", "free"); err != nil || got != "free" {
		t.Fatalf("echo while another connection blocks = %v, %v", got, err)
	}
}

func TestServerClose(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", testRegistry(t), WithLogger(discard))
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	io.WriteString(conn, `{"method":"echo","params":[1],"id":1}`+"\n")
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatalf("reply before close: %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := r.ReadString('\n'); err == nil {
		t.Error("live connection still open after Close")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestServerServeStopsOnContext(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", testRegistry(t), WithLogger(discard))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServerWithoutListener(t *testing.T) {
	srv := NewServer(NewRegistry())
	if err := srv.Serve(context.Background()); err == nil {
		t.Error("Serve without listener succeeded")
	}
	if srv.Addr() != nil {
		t.Errorf("Addr() = %v, want nil", srv.Addr())
	}
}

func TestServerLateRegistration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := startServer(t, NewRegistry())
	client, err := Dial(ctx, srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.Invoke(ctx, "late", "x"); err == nil {
		t.Fatal("call before registration succeeded")
	}
	if err := srv.Registry().RegisterFunc("late", echo); err != nil {
		t.Fatal(err)
	}
	if got, err := client.Invoke(ctx, "late", "x"); err != nil || got != "x" {
		t.Errorf("late = %v, %v", got, err)
	}
}
