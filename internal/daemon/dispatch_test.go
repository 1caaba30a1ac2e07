// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"

	"github.com/strongdm/mnemosyne/internal/config"
	"github.com/strongdm/mnemosyne/internal/registry"
	"github.com/strongdm/mnemosyne/internal/rpc"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	home := t.TempDir()
	reg, err := registry.Open(home)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	d := New(home, config.Default(), reg)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d
}

func reqWithToken(id uint64, method, token string, params any) *rpc.Request {
	body := map[string]any{}
	if params != nil {
		b, _ := json.Marshal(params)
		_ = json.Unmarshal(b, &body)
	}
	raw, _ := json.Marshal(body)
	return &rpc.Request{JSONRPC: "2.0", ID: &id, Method: method, Params: raw, AuthToken: token}
}

func TestDispatchRejectsBadToken(t *testing.T) {
	d := newTestDaemon(t)
	resp := d.dispatch(reqWithToken(1, "mnem/project/list", "wrong-token", nil), "trace-1")
	if resp.Error == nil || resp.Error.Code != rpc.CodeUnauthorized {
		t.Fatalf("got %+v, want CodeUnauthorized", resp)
	}
}

func TestDispatchStatusNeedsNoToken(t *testing.T) {
	d := newTestDaemon(t)
	resp := d.dispatch(reqWithToken(1, "status", "", nil), "trace-1")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestDispatchGatesUninitializedMethods(t *testing.T) {
	d := newTestDaemon(t)
	resp := d.dispatch(reqWithToken(1, "mnem/project/list", d.Token(), nil), "trace-1")
	if resp.Error == nil || resp.Error.Code != rpc.CodeServerNotInitialized {
		t.Fatalf("got %+v, want CodeServerNotInitialized", resp)
	}
}

func TestDispatchAllowsPreInitMethods(t *testing.T) {
	d := newTestDaemon(t)
	resp := d.dispatch(reqWithToken(1, "initialize", d.Token(), nil), "trace-1")
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}
	if d.State() != Initialized {
		t.Fatalf("state = %v, want Initialized", d.State())
	}
}

func TestDispatchShutdownShortCircuits(t *testing.T) {
	d := newTestDaemon(t)
	d.dispatch(reqWithToken(1, "initialize", d.Token(), nil), "trace-1")
	d.Shutdown()
	resp := d.dispatch(reqWithToken(2, "mnem/project/list", d.Token(), nil), "trace-1")
	if resp.Error == nil || resp.Error.Code != rpc.CodeShutdownInProgress {
		t.Fatalf("got %+v, want CodeShutdownInProgress", resp)
	}
}

func TestDispatchProjectListAfterInit(t *testing.T) {
	d := newTestDaemon(t)
	d.dispatch(reqWithToken(1, "initialize", d.Token(), nil), "trace-1")
	resp := d.dispatch(reqWithToken(2, "mnem/project/list", d.Token(), nil), "trace-1")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var out []projectInfo
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d projects, want 0", len(out))
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newTestDaemon(t)
	d.dispatch(reqWithToken(1, "initialize", d.Token(), nil), "trace-1")
	resp := d.dispatch(reqWithToken(2, "mnem/not/a/method", d.Token(), nil), "trace-1")
	if resp.Error == nil || resp.Error.Code != rpc.CodeMethodNotFound {
		t.Fatalf("got %+v, want CodeMethodNotFound", resp)
	}
}

// TestHandleConnKeepsConnectionOpenOnParseError exercises spec §7's
// "Parse — malformed JSON-RPC frame ... responded with JSON-RPC -32700;
// the connection stays open" contract end to end over a real net.Conn.
func TestHandleConnKeepsConnectionOpenOnParseError(t *testing.T) {
	d := newTestDaemon(t)
	server, client := net.Pipe()
	defer client.Close()
	go d.handleConn(server)

	fmt.Fprint(client, "not json at all\n")
	reader := bufio.NewReader(client)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read parse-error response: %v", err)
	}
	var resp rpc.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != rpc.CodeParseError {
		t.Fatalf("got %+v, want CodeParseError", resp)
	}

	// the connection must still be open: a well-formed request afterward
	// gets a normal response, not a closed pipe.
	req := rpc.Request{JSONRPC: "2.0", ID: new(uint64), Method: "status", AuthToken: d.Token()}
	reqBytes, _ := json.Marshal(req)
	reqBytes = append(reqBytes, '\n')
	if _, err := client.Write(reqBytes); err != nil {
		t.Fatalf("write follow-up request: %v", err)
	}
	line2, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read follow-up response: %v", err)
	}
	var resp2 rpc.Response
	if err := json.Unmarshal(line2, &resp2); err != nil {
		t.Fatalf("unmarshal follow-up response: %v", err)
	}
	if resp2.Error != nil {
		t.Fatalf("follow-up request failed: %+v", resp2.Error)
	}
}

func TestDispatchNotificationReturnsNil(t *testing.T) {
	d := newTestDaemon(t)
	req := reqWithToken(1, "initialize", d.Token(), nil)
	d.dispatch(req, "trace-1")

	notif := &rpc.Request{JSONRPC: "2.0", ID: nil, Method: "mnem/project/list", AuthToken: d.Token()}
	if resp := d.dispatch(notif, "trace-1"); resp != nil {
		t.Fatalf("got %+v, want nil for a notification", resp)
	}
}
