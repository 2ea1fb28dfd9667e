package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// maxResponseSize caps a lightnode response body
const maxResponseSize = 10 * 1024 * 1024

// jsonRPCError is the error object of a lightnode response
type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("lightnode error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the JSON-RPC error code
func (e *jsonRPCError) ErrorCode() int { return e.Code }

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

// httpCaller posts JSON-RPC 2.0 requests to one lightnode. Lightnodes take
// named params, so params is sent as a single JSON object, never an array.
type httpCaller struct {
	url        string
	httpClient *http.Client
	nextID     uint64
}

func newHTTPCaller(rawURL string) (*httpCaller, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid lightnode URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported lightnode URL scheme %q", u.Scheme)
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &httpCaller{
		url: rawURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

// Call sends method with params and decodes the result into result
func (c *httpCaller) Call(ctx context.Context, result interface{}, method string, params interface{}) error {
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var msg jsonRPCResponse
	if err := json.Unmarshal(respBytes, &msg); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("lightnode returned HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if msg.Error != nil {
		return msg.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lightnode returned HTTP %d", resp.StatusCode)
	}
	if result == nil || len(msg.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Result, result); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// Close releases idle connections
func (c *httpCaller) Close() {
	c.httpClient.CloseIdleConnections()
}
