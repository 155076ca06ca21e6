package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"lsp-session-manager/src/internal/common"
	"lsp-session-manager/src/internal/constants"
	"lsp-session-manager/src/internal/errors"
)

// ErrClosed is the cause recorded when a connection is closed without a more specific reason
var ErrClosed = stderrors.New("connection closed")

// NotificationHandler receives server notifications on the reader goroutine.
// It must not block.
type NotificationHandler func(method string, params json.RawMessage)

// CallObserver is told about every finished Call
type CallObserver func(method string, elapsed time.Duration, err error)

// ConnOption configures a Conn
type ConnOption func(*Conn)

// WithNotificationHandler routes server notifications to h
func WithNotificationHandler(h NotificationHandler) ConnOption {
	return func(c *Conn) { c.notify = h }
}

// WithCallObserver reports call latency and outcome, e.g. to metrics
func WithCallObserver(o CallObserver) ConnOption {
	return func(c *Conn) { c.observer = o }
}

// WithWriteTimeout bounds how long a single framed write may block
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.writeTimeout = d }
}

type callResult struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	method string
	ch     chan callResult
}

// Conn is one JSON-RPC connection to a language server over a pair of byte streams.
// Requests are correlated by numeric id; a single reader goroutine dispatches
// everything the server sends.
type Conn struct {
	language string
	w        io.WriteCloser
	r        io.Reader

	notify       NotificationHandler
	observer     CallObserver
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int32
	pending map[jsonrpc2.ID]*pendingRequest
	err     error

	startOnce  sync.Once
	closeOnce  sync.Once
	done       chan struct{}
	readerDone chan struct{}
}

// NewConn creates a connection writing to w and reading from r. Call Start to
// begin reading.
func NewConn(language string, w io.WriteCloser, r io.Reader, opts ...ConnOption) *Conn {
	c := &Conn{
		language:     language,
		w:            w,
		r:            r,
		writeTimeout: constants.WriteTimeout,
		pending:      make(map[jsonrpc2.ID]*pendingRequest),
		done:         make(chan struct{}),
		readerDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the reader goroutine. It is safe to call more than once.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
	})
}

// Language names the server this connection talks to, for logs and errors
func (c *Conn) Language() string {
	return c.language
}

// Done is closed once the connection has been closed
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// ReaderDone is closed when the reader goroutine has exited
func (c *Conn) ReaderDone() <-chan struct{} {
	return c.readerDone
}

// Err returns the cause the connection was closed with, nil while open
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pending returns the number of requests awaiting a response
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Call sends a request and waits for its response, ctx expiry, or connection loss
func (c *Conn) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.call(ctx, method, params)
	if c.observer != nil {
		c.observer(method, time.Since(start), err)
	}
	return result, err
}

func (c *Conn) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.err != nil {
		cause := c.err
		c.mu.Unlock()
		return nil, c.lost(method, cause)
	}
	c.nextID++
	n := c.nextID
	id := jsonrpc2.NewNumberID(n)
	req := &pendingRequest{method: method, ch: make(chan callResult, 1)}
	c.pending[id] = req
	c.mu.Unlock()

	msg, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		c.retire(id)
		return nil, errors.NewOperationFailed(method, err).WithLanguage(c.language)
	}

	if err := c.write(msg); err != nil {
		if c.retire(id) {
			return nil, err
		}
		// Close already failed the request
		res := <-req.ch
		return res.result, res.err
	}

	select {
	case res := <-req.ch:
		return res.result, res.err
	case <-ctx.Done():
		if !c.retire(id) {
			res := <-req.ch
			return res.result, res.err
		}
		c.cancelRequest(n)
		return nil, errors.NewOperationFailed(method, ctx.Err()).WithLanguage(c.language)
	}
}

// Notify writes a notification without waiting for any reply
func (c *Conn) Notify(ctx context.Context, method string, params interface{}) error {
	if err := ctx.Err(); err != nil {
		return errors.NewOperationFailed(method, err).WithLanguage(c.language)
	}
	if cause := c.Err(); cause != nil {
		return c.lost(method, cause)
	}
	msg, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return errors.NewOperationFailed(method, err).WithLanguage(c.language)
	}
	return c.write(msg)
}

// Close fails every pending request with ConnectionLost and closes the streams.
// Only the first call has an effect.
func (c *Conn) Close(cause error) {
	c.closeOnce.Do(func() {
		if cause == nil {
			cause = ErrClosed
		}

		c.mu.Lock()
		c.err = cause
		pending := c.pending
		c.pending = make(map[jsonrpc2.ID]*pendingRequest)
		for _, req := range pending {
			req.ch <- callResult{err: c.lost(req.method, cause)}
		}
		close(c.done)
		c.mu.Unlock()

		if len(pending) > 0 {
			common.LSPLogger.Debug("Connection to %s closed with %d pending requests: %v", c.language, len(pending), cause)
		}

		_ = c.w.Close()
		if rc, ok := c.r.(io.Closer); ok {
			_ = rc.Close()
		}
	})
}

func (c *Conn) lost(method string, cause error) error {
	e := errors.NewConnectionLost(c.language, cause)
	e.Op = method
	return e
}

// retire removes id from the pending table and reports whether it was still there
func (c *Conn) retire(id jsonrpc2.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// resolve delivers res to the request waiting on id
func (c *Conn) resolve(id jsonrpc2.ID, res callResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[id]
	if !ok {
		return false
	}
	delete(c.pending, id)
	if res.err != nil {
		var e *errors.Error
		if stderrors.As(res.err, &e) && e.Op == "" {
			e.Op = req.method
		}
	}
	req.ch <- res
	return true
}

func (c *Conn) cancelRequest(id int32) {
	if c.Err() != nil {
		return
	}
	msg, err := jsonrpc2.NewNotification(protocol.MethodCancelRequest, &protocol.CancelParams{ID: id})
	if err != nil {
		return
	}
	if err := c.write(msg); err != nil {
		common.LSPLogger.Debug("Failed to send $/cancelRequest to %s: %v", c.language, err)
	}
}

// write frames and sends msg. Writes are serialized; a write that fails or
// exceeds the write timeout closes the connection since the stream can no
// longer be trusted.
func (c *Conn) write(msg jsonrpc2.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.NewProtocolError(c.language, "marshal message", err)
	}
	frame := EncodeFrame(data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if cause := c.Err(); cause != nil {
		return c.lost(methodOf(msg), cause)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.w.Write(frame)
		errCh <- err
	}()

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			c.Close(err)
			return c.lost(methodOf(msg), err)
		}
		return nil
	case <-timer.C:
		cause := stderrors.New("write timed out")
		c.Close(cause)
		<-errCh
		return c.lost(methodOf(msg), cause)
	}
}

func methodOf(msg jsonrpc2.Message) string {
	if req, ok := msg.(jsonrpc2.Request); ok {
		return req.Method()
	}
	return ""
}

func (c *Conn) readLoop() {
	defer close(c.readerDone)

	br := bufio.NewReaderSize(c.r, constants.LSPResponseBufferSize)
	consecutive := 0

	for {
		body, err := ReadFrame(br)
		if err != nil {
			var fe *FrameError
			if stderrors.As(err, &fe) {
				common.LSPLogger.Warn("Protocol error from %s: %v", c.language, err)
				consecutive++
				if consecutive >= constants.MaxConsecutiveProtocolErrors {
					c.Close(errors.NewProtocolError(c.language, "too many consecutive unreadable frames", err))
					return
				}
				continue
			}
			c.Close(err)
			return
		}

		if c.dispatch(body) {
			consecutive = 0
			continue
		}
		consecutive++
		if consecutive >= constants.MaxConsecutiveProtocolErrors {
			c.Close(errors.NewProtocolError(c.language, "too many consecutive malformed messages", nil))
			return
		}
	}
}

// dispatch routes one message body and reports whether it could be decoded
func (c *Conn) dispatch(body []byte) bool {
	msg, err := jsonrpc2.DecodeMessage(body)
	if err != nil {
		perr := errors.NewProtocolError(c.language, "malformed message", err)
		common.LSPLogger.Warn("%v: %s", perr, common.SanitizeForLog(body))
		if id, ok := recoverID(body); ok {
			c.resolve(id, callResult{err: perr})
		}
		return false
	}

	switch m := msg.(type) {
	case *jsonrpc2.Response:
		c.handleResponse(m)
	case *jsonrpc2.Call:
		c.handleServerRequest(m)
	case *jsonrpc2.Notification:
		c.handleNotification(m)
	}
	return true
}

func (c *Conn) handleResponse(resp *jsonrpc2.Response) {
	res := callResult{result: resp.Result()}
	if rpcErr := resp.Err(); rpcErr != nil {
		res = callResult{err: errors.NewOperationFailed("", rpcErr).WithLanguage(c.language)}
	}
	if !c.resolve(resp.ID(), res) {
		common.LSPLogger.Warn("Discarding response with unknown id %v from %s", resp.ID(), c.language)
	}
}

func (c *Conn) handleNotification(n *jsonrpc2.Notification) {
	switch n.Method() {
	case protocol.MethodWindowLogMessage:
		var p protocol.LogMessageParams
		if err := json.Unmarshal(n.Params(), &p); err == nil {
			common.LSPLogger.Debug("[%s] %s", c.language, common.SanitizeForLog(p.Message))
		}
	}
	if c.notify != nil {
		c.notify(n.Method(), n.Params())
	}
}

// handleServerRequest answers server-to-client requests so the server never
// waits on us. Only workspace/configuration gets a non-null answer.
func (c *Conn) handleServerRequest(call *jsonrpc2.Call) {
	common.LSPLogger.Debug("Received server request: method=%s, id=%v from %s", call.Method(), call.ID(), c.language)

	var result interface{}
	switch call.Method() {
	case protocol.MethodWorkspaceConfiguration:
		var params protocol.ConfigurationParams
		_ = json.Unmarshal(call.Params(), &params)
		items := make([]map[string]interface{}, len(params.Items))
		for i := range items {
			items[i] = map[string]interface{}{}
		}
		result = items
	case protocol.MethodWorkspaceApplyEdit:
		result = protocol.ApplyWorkspaceEditResponse{Applied: false}
	}

	resp, err := jsonrpc2.NewResponse(call.ID(), result, nil)
	if err != nil {
		common.LSPLogger.Error("Failed to build reply for %s: %v", call.Method(), err)
		return
	}
	if err := c.write(resp); err != nil {
		common.LSPLogger.Debug("Failed to reply to %s from %s: %v", call.Method(), c.language, err)
	}
}
