// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/strongdm/mnemosyne/internal/rpc"
)

// Serve accepts connections on ln until it is closed, handling each on its
// own goroutine, per spec §5's "each connection is a task" model.
func (d *Daemon) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("[daemon] accept failed", "err", err)
			continue
		}
		go d.handleConn(conn)
	}
}

// handleConn processes one connection's requests strictly in order: read
// a line, dispatch, write the response, then read the next — the
// per-connection ordering guarantee of spec §5.
func (d *Daemon) handleConn(rwc net.Conn) {
	traceID := uuid.New().String()
	c := rpc.NewConn(rwc)
	defer c.Close()

	for {
		req, err := c.ReadRequest()
		if err != nil {
			if errors.Is(err, rpc.ErrMalformed) {
				slog.Warn("[daemon] malformed request frame", "trace_id", traceID, "err", err)
				if werr := c.WriteResponse(rpc.NewError(nil, rpc.CodeParseError, "parse error")); werr != nil {
					slog.Warn("[daemon] write parse-error response failed", "trace_id", traceID, "err", werr)
					return
				}
				continue // spec §7: parse errors keep the connection open
			}
			if !errors.Is(err, io.EOF) {
				slog.Warn("[daemon] read request failed", "trace_id", traceID, "err", err)
			}
			return
		}

		resp := d.dispatch(req, traceID)
		if resp == nil {
			continue // notification: no response expected
		}
		if err := c.WriteResponse(resp); err != nil {
			slog.Warn("[daemon] write response failed", "trace_id", traceID, "err", err)
			return
		}
	}
}

// dispatch normalizes the method name, enforces the lifecycle and auth
// gates, and routes to the handler. Returns nil for notifications (no id).
func (d *Daemon) dispatch(req *rpc.Request, traceID string) *rpc.Response {
	start := time.Now()
	method := normalizeMethod(req.Method)

	d.counters.totalRequests.Add(1)
	defer func() {
		d.counters.totalProcessingUs.Add(time.Since(start).Microseconds())
	}()

	d.mu.Lock()
	state := d.state
	token := d.token
	d.mu.Unlock()

	if state == Shutdown {
		return d.errorOrNil(req, rpc.CodeShutdownInProgress, "daemon: shutdown in progress")
	}

	if method != "status" {
		if !tokensEqual(req.AuthToken, token) {
			return d.errorOrNil(req, rpc.CodeUnauthorized, "daemon: unauthorized")
		}
	}

	if state != Initialized && !preInitAllowlist[method] {
		return d.errorOrNil(req, rpc.CodeServerNotInitialized, "daemon: server not initialized")
	}

	result, err := d.handle(method, req.Params, traceID)
	if err != nil {
		var rpcErr *rpc.Error
		if errors.As(err, &rpcErr) {
			return d.errorOrNil(req, rpcErr.Code, rpcErr.Message)
		}
		return d.errorOrNil(req, rpcCodeFor(err), err.Error())
	}

	if req.ID == nil {
		return nil // notification
	}
	out, marshalErr := rpc.NewResult(req.ID, result)
	if marshalErr != nil {
		return rpc.NewError(req.ID, rpc.CodeInternalError, marshalErr.Error())
	}
	return out
}

func (d *Daemon) errorOrNil(req *rpc.Request, code int, msg string) *rpc.Response {
	if req.ID == nil {
		return nil
	}
	return rpc.NewError(req.ID, code, msg)
}
