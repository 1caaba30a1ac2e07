// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/strongdm/mnemosyne/internal/daemon"
	"github.com/strongdm/mnemosyne/internal/process"
)

// Default reconnection settings, mirrored from the teacher's
// clients/go/reconnect.go constants.
const (
	DefaultMaxRetries    = 5
	DefaultRetryDelay    = 100 * time.Millisecond
	DefaultMaxRetryDelay = 5 * time.Second
	DefaultQueueSize     = 1000
	daemonStartupTimeout = 5 * time.Second
)

// dialFunc creates a new Client connection, injectable for testing.
type dialFunc func() (*Client, error)

// ReconnectingClient wraps Client with automatic reconnection and request
// queuing, the same resilience shape as the teacher's ReconnectingClient:
// when the connection fails, operations are queued and retried once the
// connection is re-established.
type ReconnectingClient struct {
	mu     sync.Mutex
	client *Client

	socketPath string
	tokenPath  string
	opts       []Option
	dial       dialFunc

	mnemdPath string // non-empty: auto-spawn mnemd if the socket is unreachable

	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	queue     chan *queuedRequest
	queueSize int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    bool
}

type queuedRequest struct {
	ctx      context.Context
	op       func(*Client) error
	resultCh chan error
	desc     string
}

// ReconnectOption configures reconnection behavior.
type ReconnectOption func(*ReconnectingClient)

// WithMaxRetries sets the maximum reconnection attempts (default 5).
func WithMaxRetries(n int) ReconnectOption {
	return func(rc *ReconnectingClient) { rc.maxRetries = n }
}

// WithRetryDelay sets the initial retry delay (default 100ms), doubled on
// each attempt up to WithMaxRetryDelay.
func WithRetryDelay(d time.Duration) ReconnectOption {
	return func(rc *ReconnectingClient) { rc.retryDelay = d }
}

// WithMaxRetryDelay caps the exponential backoff delay (default 5s).
func WithMaxRetryDelay(d time.Duration) ReconnectOption {
	return func(rc *ReconnectingClient) { rc.maxRetryDelay = d }
}

// WithQueueSize bounds the number of queued requests (default 1000).
func WithQueueSize(n int) ReconnectOption {
	return func(rc *ReconnectingClient) { rc.queueSize = n }
}

// WithAutoSpawn makes the client launch mnemdPath as a detached background
// process if the socket is unreachable on the initial dial or any
// subsequent reconnect, per spec §4.1's "mnem auto-starts mnemd" contract.
func WithAutoSpawn(mnemdPath string) ReconnectOption {
	return func(rc *ReconnectingClient) { rc.mnemdPath = mnemdPath }
}

// DialReconnecting connects to the daemon's Unix socket with automatic
// reconnection and request queuing.
func DialReconnecting(socketPath, tokenPath string, ropts []ReconnectOption, opts ...Option) (*ReconnectingClient, error) {
	ctx, cancel := context.WithCancel(context.Background())

	rc := &ReconnectingClient{
		socketPath:    socketPath,
		tokenPath:     tokenPath,
		opts:          opts,
		maxRetries:    DefaultMaxRetries,
		retryDelay:    DefaultRetryDelay,
		maxRetryDelay: DefaultMaxRetryDelay,
		queueSize:     DefaultQueueSize,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range ropts {
		opt(rc)
	}

	rc.dial = func() (*Client, error) { return Dial(socketPath, tokenPath, opts...) }
	rc.queue = make(chan *queuedRequest, rc.queueSize)

	cl, err := rc.dialOrSpawn()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("client: initial connection failed: %w", err)
	}
	rc.client = cl

	rc.wg.Add(1)
	go rc.sender()

	slog.Info("[client] reconnecting client initialized", "socket", socketPath, "queue_size", rc.queueSize)
	return rc, nil
}

// dialOrSpawn dials the daemon socket, spawning mnemd first if configured
// and the socket is not currently reachable.
func (rc *ReconnectingClient) dialOrSpawn() (*Client, error) {
	cl, err := rc.dial()
	if err == nil {
		return cl, nil
	}
	if rc.mnemdPath == "" || !isConnectionError(err) {
		return nil, err
	}
	if spawnErr := rc.spawnDaemon(); spawnErr != nil {
		return nil, fmt.Errorf("%w (spawn failed: %v)", err, spawnErr)
	}
	return rc.dial()
}

// spawnDaemon launches mnemdPath detached from this process and waits for
// its socket to appear, up to daemonStartupTimeout.
func (rc *ReconnectingClient) spawnDaemon() error {
	home, err := daemon.HomeDir()
	if err != nil {
		return err
	}
	if !process.StaleLiveness(daemon.PIDPath(home)) {
		return errors.New("client: mnemd appears to be running but its socket is unreachable")
	}

	cmd := exec.Command(rc.mnemdPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("client: spawn mnemd: %w", err)
	}
	go cmd.Process.Release()

	deadline := time.Now().Add(daemonStartupTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(rc.socketPath); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.New("client: mnemd did not create its socket in time")
}

func (rc *ReconnectingClient) sender() {
	defer rc.wg.Done()
	for {
		select {
		case <-rc.ctx.Done():
			rc.drainQueue(errors.New("client: closed"))
			return
		case req := <-rc.queue:
			rc.processRequest(req)
		}
	}
}

func (rc *ReconnectingClient) processRequest(req *queuedRequest) {
	if req.ctx.Err() != nil {
		req.resultCh <- req.ctx.Err()
		return
	}

	rc.mu.Lock()
	cl := rc.client
	rc.mu.Unlock()

	err := req.op(cl)
	if err != nil && isConnectionError(err) {
		slog.Warn("[client] connection error, attempting reconnect", "err", err, "op", req.desc)
		if reconnErr := rc.reconnect(req.ctx); reconnErr != nil {
			req.resultCh <- fmt.Errorf("%w (reconnect failed: %v)", err, reconnErr)
			return
		}
		rc.mu.Lock()
		cl = rc.client
		rc.mu.Unlock()
		err = req.op(cl)
	}
	req.resultCh <- err
}

func (rc *ReconnectingClient) reconnect(ctx context.Context) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	delay := rc.retryDelay
	var lastErr error

	for attempt := 1; attempt <= rc.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("reconnect cancelled: %w", ctx.Err())
			case <-rc.ctx.Done():
				return errors.New("client: closed during reconnect")
			case <-time.After(delay):
			}
			delay *= 2
			if delay > rc.maxRetryDelay {
				delay = rc.maxRetryDelay
			}
		}

		if rc.client != nil {
			rc.client.Close()
			rc.client = nil
		}

		newClient, err := rc.dialOrSpawn()
		if err != nil {
			lastErr = err
			slog.Warn("[client] reconnect dial failed", "attempt", attempt, "err", err)
			continue
		}
		rc.client = newClient
		slog.Info("[client] reconnected", "attempt", attempt)
		return nil
	}
	return fmt.Errorf("reconnect failed after %d attempts: %w", rc.maxRetries, lastErr)
}

func (rc *ReconnectingClient) drainQueue(err error) {
	for {
		select {
		case req := <-rc.queue:
			req.resultCh <- err
		default:
			return
		}
	}
}

func (rc *ReconnectingClient) enqueue(ctx context.Context, desc string, op func(*Client) error) error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return ErrClientClosed
	}
	rc.mu.Unlock()

	req := &queuedRequest{ctx: ctx, op: op, resultCh: make(chan error, 1), desc: desc}

	select {
	case rc.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("client: request queue full")
	}

	select {
	case err := <-req.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call issues method through the queue, decoding the raw JSON result into
// out (which may be nil to discard the result).
func (rc *ReconnectingClient) Call(ctx context.Context, method string, params any, out any) error {
	return rc.enqueue(ctx, method, func(c *Client) error {
		return c.CallInto(ctx, method, params, out)
	})
}

// Close closes the client and drains any pending requests.
func (rc *ReconnectingClient) Close() error {
	var err error
	rc.closeOnce.Do(func() {
		rc.mu.Lock()
		rc.closed = true
		rc.mu.Unlock()

		rc.cancel()
		rc.wg.Wait()

		rc.mu.Lock()
		if rc.client != nil {
			err = rc.client.Close()
		}
		rc.mu.Unlock()
	})
	return err
}

// QueueLength returns the current number of queued requests.
func (rc *ReconnectingClient) QueueLength() int {
	return len(rc.queue)
}

// isConnectionError reports whether err indicates a broken connection that
// may be recoverable via reconnection, per the teacher's own
// isConnectionError classification.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClientClosed) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"use of closed network connection",
		"no such file or directory",
		"eof",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}
