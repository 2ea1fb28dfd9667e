package btc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

// bitcoind RPC error codes the adapter reacts to
const (
	rpcInvalidAddressOrKey = -5  // unknown transaction id
	rpcVerifyAlreadyInChain = -27 // sendrawtransaction of a mined tx
)

// caller is the subset of *rpc.Client used against bitcoind
type caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// bitcoindError is a JSON-RPC error returned by bitcoind
type bitcoindError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *bitcoindError) Error() string {
	return fmt.Sprintf("bitcoind error %d: %s", e.Code, e.Message)
}

// asBitcoindError extracts the bitcoind error from a call failure. Legacy
// JSON-RPC 1.0 servers answer errors with HTTP 500, so the error may arrive
// as an HTTP error body instead of a JSON-RPC error object.
func asBitcoindError(err error) (*bitcoindError, bool) {
	var btcErr *bitcoindError
	if errors.As(err, &btcErr) {
		return btcErr, true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &bitcoindError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}, true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Body) > 0 {
		var body struct {
			Error *bitcoindError `json:"error"`
		}
		if json.Unmarshal(httpErr.Body, &body) == nil && body.Error != nil {
			return body.Error, true
		}
	}
	return nil, false
}

// RPCClient talks to one or more bitcoind nodes with round-robin failover
type RPCClient struct {
	clients []caller
	index   uint64
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// NewRPCClient dials every URL with HTTP basic auth. Unreachable URLs are skipped.
func NewRPCClient(rpcURLs []string, user, password string, logger zerolog.Logger) (*RPCClient, error) {
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}

	log := logger.With().Str("component", "btc_rpc_client").Logger()
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	auth := rpc.WithHTTPAuth(func(h http.Header) error {
		h.Set("Authorization", "Basic "+token)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clients := make([]caller, 0, len(rpcURLs))
	for _, url := range rpcURLs {
		client, err := rpc.DialOptions(ctx, url, auth)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to RPC endpoint, skipping")
			continue
		}
		clients = append(clients, client)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("failed to connect to any valid RPC endpoints")
	}
	return newRPCClientWithCallers(clients, log), nil
}

func newRPCClientWithCallers(clients []caller, logger zerolog.Logger) *RPCClient {
	return &RPCClient{clients: clients, logger: logger}
}

// call runs method on the next endpoint, failing over on transport errors.
// A bitcoind error is the node's answer and is returned without failover.
func (rc *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()

	if len(clients) == 0 {
		return fmt.Errorf("no RPC clients available for %s", method)
	}

	var lastErr error
	for attempt := 0; attempt < len(clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		index := atomic.AddUint64(&rc.index, 1) - 1
		client := clients[index%uint64(len(clients))]

		err := client.CallContext(ctx, result, method, args...)
		if err == nil {
			return nil
		}
		if btcErr, ok := asBitcoindError(err); ok {
			return btcErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err

		rc.logger.Warn().
			Str("method", method).
			Int("attempt", attempt+1).
			Err(err).
			Msg("call failed, trying next endpoint")
	}

	return fmt.Errorf("%s failed after trying %d endpoints: %w", method, len(clients), lastErr)
}

// Close closes all RPC connections
func (rc *RPCClient) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, client := range rc.clients {
		client.Close()
	}
	rc.clients = nil
}
