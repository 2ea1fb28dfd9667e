package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// DepositEvent is a decoded Deposit log
type DepositEvent struct {
	Holder      string
	Symbol      string
	Amount      *big.Int
	TxHash      string
	BlockNumber uint64
}

// ResultEvent is a decoded Result log
type ResultEvent struct {
	GameIndex   *big.Int
	Winner      string
	Symbol      string
	Amount      *big.Int
	TxHash      string
	BlockNumber uint64
}

// Subscription delivers at most one event per arm. After delivery it stays
// idle until Rearm; Close stops it for good.
type Subscription struct {
	event   abi.Event
	reader  Reader
	filter  ethereum.FilterQuery
	deliver func(types.Log) error
	logger  zerolog.Logger

	mu        sync.Mutex
	armed     bool
	fromBlock uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// OnNextDeposit calls cb with the next Deposit event emitted after now
func (c *Client) OnNextDeposit(ctx context.Context, cb func(DepositEvent)) (*Subscription, error) {
	ev := c.abi.Events[EventDeposit]
	return c.subscribe(ctx, ev, func(l types.Log) error {
		values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return err
		}
		if len(values) != 2 || len(l.Topics) < 2 {
			return fmt.Errorf("malformed %s log", EventDeposit)
		}
		symbol, _ := values[0].(string)
		amount, _ := values[1].(*big.Int)
		cb(DepositEvent{
			Holder:      ethcommon.BytesToAddress(l.Topics[1].Bytes()).Hex(),
			Symbol:      symbol,
			Amount:      orZero(amount),
			TxHash:      l.TxHash.Hex(),
			BlockNumber: l.BlockNumber,
		})
		return nil
	})
}

// OnNextResult calls cb with the next Result event emitted after now
func (c *Client) OnNextResult(ctx context.Context, cb func(ResultEvent)) (*Subscription, error) {
	ev := c.abi.Events[EventResult]
	return c.subscribe(ctx, ev, func(l types.Log) error {
		values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return err
		}
		if len(values) != 3 || len(l.Topics) < 2 {
			return fmt.Errorf("malformed %s log", EventResult)
		}
		winner, _ := values[0].(ethcommon.Address)
		symbol, _ := values[1].(string)
		amount, _ := values[2].(*big.Int)
		cb(ResultEvent{
			GameIndex:   new(big.Int).SetBytes(l.Topics[1].Bytes()),
			Winner:      winner.Hex(),
			Symbol:      symbol,
			Amount:      orZero(amount),
			TxHash:      l.TxHash.Hex(),
			BlockNumber: l.BlockNumber,
		})
		return nil
	})
}

func (c *Client) subscribe(ctx context.Context, ev abi.Event, deliver func(types.Log) error) (*Subscription, error) {
	latest, err := c.reader.GetLatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest block: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		event:  ev,
		reader: c.reader,
		filter: ethereum.FilterQuery{
			Addresses: []ethcommon.Address{c.contract},
			Topics:    [][]ethcommon.Hash{{ev.ID}},
		},
		deliver:   deliver,
		logger:    c.logger.With().Str("event", ev.Name).Logger(),
		armed:     true,
		fromBlock: latest + 1,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(subCtx, c.pollInterval)
	return s, nil
}

// Rearm lets the subscription deliver one more event, emitted after now
func (s *Subscription) Rearm(ctx context.Context) error {
	latest, err := s.reader.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read latest block: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	if latest+1 > s.fromBlock {
		s.fromBlock = latest + 1
	}
	return nil
}

// Armed reports whether the subscription is waiting for an event
func (s *Subscription) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Done is closed once the poll loop has exited
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops polling and waits for the poll loop to exit
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Subscription) poll(ctx context.Context) {
	s.mu.Lock()
	armed, from := s.armed, s.fromBlock
	s.mu.Unlock()
	if !armed {
		return
	}

	q := s.filter
	q.FromBlock = new(big.Int).SetUint64(from)
	logs, err := s.reader.FilterLogs(ctx, q)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Uint64("from_block", from).Msg("failed to filter logs")
		}
		return
	}

	for _, l := range logs {
		if l.Removed || l.BlockNumber < from {
			continue
		}

		// disarm before the callback so it may Rearm
		s.mu.Lock()
		s.armed = false
		s.fromBlock = l.BlockNumber + 1
		s.mu.Unlock()

		if err := s.deliver(l); err != nil {
			s.logger.Warn().Err(err).Str("tx_hash", l.TxHash.Hex()).Msg("failed to decode event")
			s.mu.Lock()
			s.armed = true
			s.mu.Unlock()
			continue
		}
		return
	}
}
