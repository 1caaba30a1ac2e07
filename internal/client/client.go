// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package client implements the local RPC client used by the mnem CLI (and
// any other process embedding it) to talk to the mnemd daemon over its
// Unix domain socket.
//
// Grounded on the teacher's clients/go/client.go Dial/Close/request-timeout
// shape, adapted from CXDB's binary framing and TCP/TLS dial options to
// mnemosyne's newline-delimited JSON-RPC framing (internal/rpc) over a
// single Unix domain socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/mnemosyne/internal/daemon"
	"github.com/strongdm/mnemosyne/internal/rpc"
)

// DefaultDialTimeout bounds how long Dial waits for the Unix socket to
// accept a connection.
const DefaultDialTimeout = 5 * time.Second

// DefaultRequestTimeout bounds how long Call waits for a response.
const DefaultRequestTimeout = 30 * time.Second

// ErrClientClosed is returned by Call once Close has been called.
var ErrClientClosed = errors.New("client: closed")

// Client is a single connection to mnemd, serializing requests: one
// in-flight request per connection at a time, matching the teacher's
// one-outstanding-request client model.
type Client struct {
	conn      net.Conn
	c         *rpc.Conn
	mu        sync.Mutex
	nextID    atomic.Uint64
	timeout   time.Duration
	closed    bool
	authToken string
}

// Option configures Dial.
type Option func(*options)

type options struct {
	dialTimeout    time.Duration
	requestTimeout time.Duration
}

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// Dial connects to the mnemd Unix domain socket at socketPath and performs
// the initialize handshake using the token read from tokenPath.
func Dial(socketPath, tokenPath string, opts ...Option) (*Client, error) {
	o := options{dialTimeout: DefaultDialTimeout, requestTimeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := net.DialTimeout("unix", socketPath, o.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", socketPath, err)
	}

	token, err := daemon.ReadTokenFile(tokenPath)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: read token: %w", err)
	}

	cl := &Client{conn: conn, c: rpc.NewConn(conn), timeout: o.requestTimeout, authToken: token}

	ctx, cancel := context.WithTimeout(context.Background(), o.requestTimeout)
	defer cancel()
	if _, err := cl.Call(ctx, "initialize", map[string]any{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: initialize: %w", err)
	}
	return cl, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Call sends method with params, attaching the client's auth token as a
// top-level sibling of params (per spec §4.8's documented frame shape),
// and decodes the result into a json.RawMessage. A nil params is sent as
// an empty object.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	req := &rpc.Request{JSONRPC: "2.0", ID: &id, Method: method, Params: raw, AuthToken: c.authToken}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	} else if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := c.c.WriteRequest(req); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}

	resp, err := c.c.ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// CallInto is Call plus decoding the result into out.
func (c *Client) CallInto(ctx context.Context, method string, params any, out any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return json.Marshal(map[string]any{})
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("client: marshal params: %w", err)
	}
	return raw, nil
}
