package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Network is the bridge network surface the client needs
type Network interface {
	QueryFees(ctx context.Context, selector string) (Fees, error)
	QueryGatewayAddress(ctx context.Context, req GatewayAddressRequest) (string, error)
	SubmitTx(ctx context.Context, req ConsensusRequest) (string, error)
	QueryTx(ctx context.Context, hash string) (*TxStatus, error)
}

// caller sends one JSON-RPC request to a single lightnode
type caller interface {
	Call(ctx context.Context, result interface{}, method string, params interface{}) error
	Close()
}

// LightnodeClient is a rate-limited JSON-RPC client for the bridge network's lightnodes
type LightnodeClient struct {
	clients []caller
	index   uint64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLightnodeClient creates one caller per URL. requestsPerSecond <= 0 disables rate limiting.
func NewLightnodeClient(urls []string, requestsPerSecond int, logger zerolog.Logger) (*LightnodeClient, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no lightnode URLs provided")
	}

	log := logger.With().Str("component", "lightnode_client").Logger()

	clients := make([]caller, 0, len(urls))
	for _, url := range urls {
		client, err := newHTTPCaller(url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("invalid lightnode URL, skipping")
			continue
		}
		clients = append(clients, client)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no usable lightnode URLs")
	}

	return newLightnodeClient(clients, requestsPerSecond, log), nil
}

func newLightnodeClient(clients []caller, requestsPerSecond int, logger zerolog.Logger) *LightnodeClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
	return &LightnodeClient{clients: clients, limiter: limiter, logger: logger}
}

func (c *LightnodeClient) call(ctx context.Context, result interface{}, method string, params interface{}) error {
	if len(c.clients) == 0 {
		return fmt.Errorf("no lightnode clients available for %s", method)
	}

	var lastErr error
	for attempt := 0; attempt < len(c.clients); attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		index := atomic.AddUint64(&c.index, 1) - 1
		client := c.clients[index%uint64(len(c.clients))]

		err := client.Call(ctx, result, method, params)
		if err == nil {
			return nil
		}
		// a JSON-RPC error is the network's answer; only transport failures fail over
		var rpcErr *jsonRPCError
		if errors.As(err, &rpcErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err

		c.logger.Warn().Str("method", method).Int("attempt", attempt+1).Err(err).Msg("lightnode call failed, trying next")
	}
	return fmt.Errorf("%s failed after trying %d lightnodes: %w", method, len(c.clients), lastErr)
}

// QueryFees implements Network
func (c *LightnodeClient) QueryFees(ctx context.Context, selector string) (Fees, error) {
	var resp feesResponse
	if err := c.call(ctx, &resp, "ren_queryFees", map[string]string{"selector": selector}); err != nil {
		return Fees{}, fmt.Errorf("ren_queryFees(%s): %w", selector, err)
	}
	return Fees{
		Lock:    bigOrZero(resp.Lock),
		Release: bigOrZero(resp.Release),
		MintBps: uint64(resp.Mint),
		BurnBps: uint64(resp.Burn),
	}, nil
}

// QueryGatewayAddress implements Network
func (c *LightnodeClient) QueryGatewayAddress(ctx context.Context, req GatewayAddressRequest) (string, error) {
	var resp gatewayAddressResponse
	if err := c.call(ctx, &resp, "ren_queryGatewayAddress", req); err != nil {
		return "", fmt.Errorf("ren_queryGatewayAddress(%s): %w", req.Selector, err)
	}
	if resp.GatewayAddress == "" {
		return "", fmt.Errorf("ren_queryGatewayAddress(%s): empty gateway address", req.Selector)
	}
	return resp.GatewayAddress, nil
}

// SubmitTx implements Network
func (c *LightnodeClient) SubmitTx(ctx context.Context, req ConsensusRequest) (string, error) {
	var resp submitTxResponse
	if err := c.call(ctx, &resp, "ren_submitTx", req); err != nil {
		return "", fmt.Errorf("ren_submitTx(%s): %w", req.Selector, err)
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("ren_submitTx(%s): empty hash", req.Selector)
	}
	return resp.Hash, nil
}

// QueryTx implements Network
func (c *LightnodeClient) QueryTx(ctx context.Context, hash string) (*TxStatus, error) {
	var resp TxStatus
	if err := c.call(ctx, &resp, "ren_queryTx", map[string]string{"txHash": hash}); err != nil {
		return nil, fmt.Errorf("ren_queryTx(%s): %w", hash, err)
	}
	return &resp, nil
}

// Close closes all lightnode connections
func (c *LightnodeClient) Close() {
	for _, client := range c.clients {
		client.Close()
	}
	c.clients = nil
}

func bigOrZero(b *hexutil.Big) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.ToInt())
}
