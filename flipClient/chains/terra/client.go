package terra

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	cmtservice "github.com/cosmos/cosmos-sdk/client/grpc/cmtservice"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/query"
	"github.com/cosmos/cosmos-sdk/types/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client is a minimal fan-out client over multiple Terra gRPC endpoints.
// Each call tries endpoints in round-robin order and returns the first success.
type Client struct {
	logger      zerolog.Logger
	authClients []authtypes.QueryClient
	bankClients []banktypes.QueryClient
	cmtClients  []cmtservice.ServiceClient
	txClients   []tx.ServiceClient
	conns       []*grpc.ClientConn // owned connections for Close()
	rr          uint32             // round-robin counter
}

// NewClient dials the provided gRPC URLs (best-effort) and builds a Client.
// Endpoints that fail to dial are skipped; at least one must succeed.
func NewClient(urls []string, logger zerolog.Logger) (*Client, error) {
	if len(urls) == 0 {
		return nil, errors.New("terra: at least one gRPC URL is required")
	}

	c := &Client{
		logger: logger.With().Str("component", "terra_client").Logger(),
	}

	for i, u := range urls {
		conn, err := CreateGRPCConnection(u)
		if err != nil {
			c.logger.Warn().Str("url", u).Int("index", i).Err(err).Msg("dial failed; skipping endpoint")
			continue
		}
		c.conns = append(c.conns, conn)
		c.authClients = append(c.authClients, authtypes.NewQueryClient(conn))
		c.bankClients = append(c.bankClients, banktypes.NewQueryClient(conn))
		c.cmtClients = append(c.cmtClients, cmtservice.NewServiceClient(conn))
		c.txClients = append(c.txClients, tx.NewServiceClient(conn))
	}

	if len(c.conns) == 0 {
		_ = c.Close()
		return nil, fmt.Errorf("terra: all dials failed (%d urls)", len(urls))
	}

	return c, nil
}

// Close closes all owned connections.
func (c *Client) Close() error {
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.conns = nil
	c.authClients = nil
	c.bankClients = nil
	c.cmtClients = nil
	c.txClients = nil
	return firstErr
}

// fanOut calls fn on each endpoint in round-robin order until one succeeds.
// A NotFound status is an answer, not an endpoint failure, and is returned as is.
func fanOut[C any, R any](c *Client, clients []C, op string, fn func(C) (R, error)) (R, error) {
	var zero R
	if len(clients) == 0 {
		return zero, errors.New("terra: no endpoints configured")
	}

	start := int(atomic.AddUint32(&c.rr, 1)-1) % len(clients)

	var lastErr error
	for i := 0; i < len(clients); i++ {
		idx := (start + i) % len(clients)

		resp, err := fn(clients[idx])
		if err == nil {
			return resp, nil
		}
		if status.Code(err) == codes.NotFound || errors.Is(err, context.Canceled) {
			return zero, err
		}

		lastErr = err
		c.logger.Debug().
			Str("operation", op).
			Int("attempt", i+1).
			Int("endpoint_index", idx).
			Err(err).
			Msg("call failed; trying next endpoint")
	}

	return zero, fmt.Errorf("terra: %s failed on all %d endpoints: %w", op, len(clients), lastErr)
}

// GetBalance returns the bank balance of address in denom.
func (c *Client) GetBalance(ctx context.Context, address, denom string) (*big.Int, error) {
	return fanOut(c, c.bankClients, "Balance", func(qc banktypes.QueryClient) (*big.Int, error) {
		resp, err := qc.Balance(ctx, &banktypes.QueryBalanceRequest{Address: address, Denom: denom})
		if err != nil {
			return nil, err
		}
		if resp.Balance == nil {
			return new(big.Int), nil
		}
		return resp.Balance.Amount.BigInt(), nil
	})
}

// GetAccount returns the packed auth account of address. Unpacking needs an
// interface registry with the auth types registered.
func (c *Client) GetAccount(ctx context.Context, address string) (*codectypes.Any, error) {
	return fanOut(c, c.authClients, "Account", func(qc authtypes.QueryClient) (*codectypes.Any, error) {
		resp, err := qc.Account(ctx, &authtypes.QueryAccountRequest{Address: address})
		if err != nil {
			return nil, err
		}
		if resp.Account == nil {
			return nil, status.Error(codes.NotFound, "account not found")
		}
		return resp.Account, nil
	})
}

// GetLatestBlockNum returns the latest block height.
func (c *Client) GetLatestBlockNum(ctx context.Context) (uint64, error) {
	return fanOut(c, c.cmtClients, "GetLatestBlock", func(sc cmtservice.ServiceClient) (uint64, error) {
		resp, err := sc.GetLatestBlock(ctx, &cmtservice.GetLatestBlockRequest{})
		if err != nil {
			return 0, err
		}
		if resp.SdkBlock == nil {
			return 0, errors.New("SdkBlock is nil")
		}
		return uint64(resp.SdkBlock.Header.Height), nil
	})
}

// BroadcastTx submits signed tx bytes in sync mode. A CheckTx failure is
// reported through the response code, not the error.
func (c *Client) BroadcastTx(ctx context.Context, txBytes []byte) (*sdk.TxResponse, error) {
	return fanOut(c, c.txClients, "BroadcastTx", func(sc tx.ServiceClient) (*sdk.TxResponse, error) {
		resp, err := sc.BroadcastTx(ctx, &tx.BroadcastTxRequest{
			TxBytes: txBytes,
			Mode:    tx.BroadcastMode_BROADCAST_MODE_SYNC,
		})
		if err != nil {
			return nil, err
		}
		if resp.TxResponse == nil {
			return nil, errors.New("empty broadcast response")
		}
		return resp.TxResponse, nil
	})
}

// GetTx returns the included transaction with hash, or a NotFound status error.
func (c *Client) GetTx(ctx context.Context, hash string) (*sdk.TxResponse, error) {
	return fanOut(c, c.txClients, "GetTx", func(sc tx.ServiceClient) (*sdk.TxResponse, error) {
		resp, err := sc.GetTx(ctx, &tx.GetTxRequest{Hash: hash})
		if err != nil {
			return nil, err
		}
		if resp.TxResponse == nil {
			return nil, status.Error(codes.NotFound, "tx not found")
		}
		return resp.TxResponse, nil
	})
}

// GetTxsByEvents queries transactions matching the given event conditions,
// oldest first. Conditions are joined with AND (SDK v0.50 query format).
func (c *Client) GetTxsByEvents(ctx context.Context, conditions []string, limit uint64) ([]*sdk.TxResponse, error) {
	if limit == 0 {
		limit = 100
	}
	req := &tx.GetTxsEventRequest{
		Query:      strings.Join(conditions, " AND "),
		Pagination: &query.PageRequest{Limit: limit},
		OrderBy:    tx.OrderBy_ORDER_BY_ASC,
	}
	return fanOut(c, c.txClients, "GetTxsEvent", func(sc tx.ServiceClient) ([]*sdk.TxResponse, error) {
		resp, err := sc.GetTxsEvent(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.TxResponses, nil
	})
}

// CreateGRPCConnection creates a gRPC connection with appropriate transport security.
// https:// URLs use TLS, http:// or no scheme is insecure, and port 9090 is added
// when none is given.
func CreateGRPCConnection(endpoint string) (*grpc.ClientConn, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty endpoint provided")
	}

	processedEndpoint := endpoint
	useTLS := false

	if strings.HasPrefix(endpoint, "https://") {
		processedEndpoint = strings.TrimPrefix(endpoint, "https://")
		useTLS = true
	} else if strings.HasPrefix(endpoint, "http://") {
		processedEndpoint = strings.TrimPrefix(endpoint, "http://")
	}

	if !strings.Contains(processedEndpoint, ":") {
		processedEndpoint = processedEndpoint + ":9090"
	} else {
		lastColon := strings.LastIndex(processedEndpoint, ":")
		afterColon := processedEndpoint[lastColon+1:]
		if afterColon == "" || strings.Contains(afterColon, "/") {
			processedEndpoint = strings.TrimSuffix(processedEndpoint, ":") + ":9090"
		}
	}

	var opts []grpc.DialOption
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(processedEndpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to %s: %w", processedEndpoint, err)
	}

	return conn, nil
}
