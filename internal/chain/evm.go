package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/erc20/internal/logger"
)

// Observer is notified after every JSON-RPC round trip. err is nil on success.
type Observer interface {
	ObserveCall(method string, took time.Duration, err error)
}

// Client is a minimal JSON-RPC client for EVM chains. It keeps no per-call
// state and is safe for concurrent use as long as its *http.Client is.
type Client struct {
	url      string
	client   *http.Client
	log      *zap.Logger
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver registers a hook called after every request.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewEVMClient creates a new EVM JSON-RPC client pointed at url.
func NewEVMClient(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		client: NewHTTPClient(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() string { return c.url }

// --- JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorObject `json:"error"`
}

type rpcErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// maxErrorBody bounds how much of a non-2xx body ends up in an error message.
const maxErrorBody = 512

// Call sends one JSON-RPC request and returns the raw "result" member.
// Every failure is an *RPCError. The client never retries on its own.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.call(ctx, method, params)
	took := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveCall(method, took, err)
	}
	if err != nil {
		c.log.Debug("rpc call failed", zap.String("method", method), zap.Duration("took", took), zap.Error(err))
		return nil, err
	}
	c.log.Debug("rpc call", zap.String("method", method), zap.Duration("took", took))
	return result, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, &RPCError{Method: method, Err: fmt.Errorf("encoding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &RPCError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RPCError{Method: method, Err: fmt.Errorf("RPC request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RPCError{Method: method, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := bytes.TrimSpace(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &RPCError{Method: method, Status: resp.StatusCode, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, &RPCError{Method: method, Err: fmt.Errorf("parsing response: %w", err)}
	}
	if rpcResp.Error != nil {
		return nil, &RPCError{Method: method, Code: rpcResp.Error.Code, Err: fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	if len(rpcResp.Result) == 0 {
		return nil, &RPCError{Method: method, Err: fmt.Errorf("response has neither result nor error")}
	}
	return rpcResp.Result, nil
}

// callInto performs Call and unmarshals the result into out. A result that
// does not fit out is reported as an *RPCError: the endpoint answered with
// something that is not what the method promises.
func (c *Client) callInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RPCError{Method: method, Err: fmt.Errorf("parsing result %s: %w", truncate(raw), err)}
	}
	return nil
}

func truncate(raw json.RawMessage) string {
	const max = 80
	if len(raw) > max {
		return string(raw[:max]) + "…"
	}
	return string(raw)
}
