// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/strongdm/mnemosyne/internal/rpc"
)

func TestIsConnectionErrorClassifiesKnownCases(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrClientClosed, false},
		{io.EOF, true},
		{io.ErrUnexpectedEOF, true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("dial unix: connection refused"), true},
		{&rpc.Error{Code: rpc.CodeInvalidParams, Message: "bad params"}, false},
	}
	for _, c := range cases {
		if got := isConnectionError(c.err); got != c.want {
			t.Fatalf("isConnectionError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

// pipeClient builds a *Client backed by one end of a net.Pipe whose peer
// answers every request with an empty object result.
func pipeClient(t *testing.T) (*Client, func()) {
	t.Helper()
	server, conn := net.Pipe()
	fakeServer(t, server, map[string]any{})
	cl := &Client{conn: conn, c: rpc.NewConn(conn), timeout: DefaultRequestTimeout}
	return cl, func() { server.Close(); conn.Close() }
}

func TestReconnectingClientCallGoesThroughQueue(t *testing.T) {
	cl, cleanup := pipeClient(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rc := &ReconnectingClient{
		client:        cl,
		maxRetries:    DefaultMaxRetries,
		retryDelay:    DefaultRetryDelay,
		maxRetryDelay: DefaultMaxRetryDelay,
		queueSize:     DefaultQueueSize,
		ctx:           ctx,
		cancel:        cancel,
	}
	rc.queue = make(chan *queuedRequest, rc.queueSize)
	rc.dial = func() (*Client, error) { return cl, nil }
	rc.wg.Add(1)
	go rc.sender()
	defer rc.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	var out map[string]any
	if err := rc.Call(callCtx, "status", map[string]any{}, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestReconnectingClientCallAfterCloseFails(t *testing.T) {
	cl, cleanup := pipeClient(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	rc := &ReconnectingClient{
		client:        cl,
		maxRetries:    DefaultMaxRetries,
		retryDelay:    DefaultRetryDelay,
		maxRetryDelay: DefaultMaxRetryDelay,
		queueSize:     DefaultQueueSize,
		ctx:           ctx,
		cancel:        cancel,
	}
	rc.queue = make(chan *queuedRequest, rc.queueSize)
	rc.dial = func() (*Client, error) { return cl, nil }
	rc.wg.Add(1)
	go rc.sender()

	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out map[string]any
	err := rc.Call(context.Background(), "status", map[string]any{}, &out)
	if err != ErrClientClosed {
		t.Fatalf("got %v, want ErrClientClosed", err)
	}
}
