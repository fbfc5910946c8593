package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kelsos/ledger-sync/internal/logger"
)

// ErrNoEndpoint is returned when a chain has no usable RPC endpoint
var ErrNoEndpoint = errors.New("no RPC endpoint configured")

// Conn is one open RPC handle, owned by a single pipeline task
type Conn interface {
	Call(ctx context.Context, method string, result interface{}, params ...interface{}) error
	Endpoint() string
	Close() error
}

// Connector opens RPC handles
type Connector interface {
	Open(ctx context.Context, endpoints []string) (Conn, error)
}

// RPCError is a JSON-RPC error object
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// WSConnector dials JSON-RPC websocket endpoints, trying them in order
type WSConnector struct {
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// NewWSConnector creates a connector with the given timeouts
func NewWSConnector(dialTimeout, callTimeout time.Duration) *WSConnector {
	return &WSConnector{
		DialTimeout: dialTimeout,
		CallTimeout: callTimeout,
	}
}

// Open connects to the first reachable endpoint
func (c *WSConnector) Open(ctx context.Context, endpoints []string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.DialTimeout}

	var errs []error
	for _, endpoint := range endpoints {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}

		start := time.Now()
		ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			logger.Warn("Failed to connect to %s after %v: %v", endpoint, time.Since(start), err)
			errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		logger.Debug("Connected to %s in %v", endpoint, time.Since(start))
		return &WSConn{ws: ws, endpoint: endpoint, callTimeout: c.CallTimeout}, nil
	}

	if len(errs) == 0 {
		return nil, ErrNoEndpoint
	}
	return nil, fmt.Errorf("all endpoints failed: %w", errors.Join(errs...))
}

// WSConn is a sequential JSON-RPC client over one websocket
type WSConn struct {
	mu          sync.Mutex
	ws          *websocket.Conn
	endpoint    string
	callTimeout time.Duration
	nextID      uint64
	closed      bool
}

func (c *WSConn) Endpoint() string {
	return c.endpoint
}

// Call sends a request and waits for the response with the same id, skipping subscription
// notifications in between
func (c *WSConn) Call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%s: connection closed", c.endpoint)
	}

	if params == nil {
		params = []interface{}{}
	}

	c.nextID++
	id := c.nextID

	deadline := time.Time{}
	if c.callTimeout > 0 {
		deadline = time.Now().Add(c.callTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return err
	}

	start := time.Now()
	logger.Debug("Calling %s on %s", method, c.endpoint)

	if err := c.ws.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("%s: failed to send %s: %w", c.endpoint, method, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var resp response
		if err := c.ws.ReadJSON(&resp); err != nil {
			return fmt.Errorf("%s: failed to read %s response: %w", c.endpoint, method, err)
		}
		if resp.ID == nil || *resp.ID != id {
			continue
		}

		logger.Debug("%s on %s completed in %v", method, c.endpoint, time.Since(start))

		if resp.Error != nil {
			return fmt.Errorf("%s %s: %w", c.endpoint, method, resp.Error)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: error decoding %s response: %w", c.endpoint, method, err)
		}
		return nil
	}
}

// Close releases the socket; calling it twice is harmless
func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
