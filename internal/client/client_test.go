// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/strongdm/mnemosyne/internal/rpc"
)

func TestMarshalParamsPassesThroughObject(t *testing.T) {
	raw, err := marshalParams(map[string]any{"project_path": "/tmp/x"})
	if err != nil {
		t.Fatalf("marshalParams: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["project_path"] != "/tmp/x" {
		t.Fatalf("got %+v", out)
	}
}

func TestMarshalParamsNilBecomesEmptyObject(t *testing.T) {
	raw, err := marshalParams(nil)
	if err != nil {
		t.Fatalf("marshalParams: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %+v, want empty object", out)
	}
}

// TestClientCallSendsAuthTokenAsTopLevelField asserts the wire frame
// carries auth_token as a sibling of params (spec §4.8), not merged inside
// it.
func TestClientCallSendsAuthTokenAsTopLevelField(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()
	defer conn.Close()

	cl := &Client{conn: conn, c: rpc.NewConn(conn), timeout: DefaultRequestTimeout, authToken: "tok-456"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c := rpc.NewConn(server)
		req, err := c.ReadRequest()
		if err != nil {
			t.Errorf("ReadRequest: %v", err)
			return
		}
		if req.AuthToken != "tok-456" {
			t.Errorf("req.AuthToken = %q, want tok-456", req.AuthToken)
		}
		var params map[string]any
		if err := json.Unmarshal(req.Params, &params); err != nil {
			t.Errorf("unmarshal params: %v", err)
			return
		}
		if _, ok := params["auth_token"]; ok {
			t.Errorf("params = %+v, auth_token must not be nested inside params", params)
		}
		resp, err := rpc.NewResult(req.ID, map[string]string{"ok": "1"})
		if err != nil {
			t.Errorf("NewResult: %v", err)
			return
		}
		_ = c.WriteResponse(resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cl.Call(ctx, "status", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	<-done
}

// fakeServer replies to every request with a fixed result, echoing the id.
func fakeServer(t *testing.T, conn net.Conn, result any) {
	t.Helper()
	c := rpc.NewConn(conn)
	go func() {
		defer conn.Close()
		for {
			req, err := c.ReadRequest()
			if err != nil {
				return
			}
			resp, err := rpc.NewResult(req.ID, result)
			if err != nil {
				return
			}
			if err := c.WriteResponse(resp); err != nil {
				return
			}
		}
	}()
}

func TestClientCallRoundTrip(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()
	fakeServer(t, server, map[string]string{"state": "initialized"})

	cl := &Client{conn: conn, c: rpc.NewConn(conn), timeout: DefaultRequestTimeout, authToken: "tok"}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := cl.Call(ctx, "status", map[string]any{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["state"] != "initialized" {
		t.Fatalf("got %+v", out)
	}
}

func TestClientCallIntoDecodesResult(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()
	fakeServer(t, server, map[string]int{"count": 7})

	cl := &Client{conn: conn, c: rpc.NewConn(conn), timeout: DefaultRequestTimeout, authToken: "tok"}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out struct {
		Count int `json:"count"`
	}
	if err := cl.CallInto(ctx, "mnem/project/statistics", map[string]any{}, &out); err != nil {
		t.Fatalf("CallInto: %v", err)
	}
	if out.Count != 7 {
		t.Fatalf("got %+v, want count=7", out)
	}
}

func TestClientCallAfterCloseFails(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	cl := &Client{conn: conn, c: rpc.NewConn(conn), timeout: DefaultRequestTimeout}
	if err := cl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := cl.Call(context.Background(), "status", nil)
	if err != ErrClientClosed {
		t.Fatalf("got %v, want ErrClientClosed", err)
	}
}
