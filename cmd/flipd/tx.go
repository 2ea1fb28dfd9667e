package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/core"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/pipeline"
)

func depositCmd() *cobra.Command {
	var (
		from         string
		external     bool
		retries      int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "deposit [symbol] [amount]",
		Short: "Bridge a native asset into the escrow balance of the user",
		Long: `Bridge BTC or LUNA into the Flip ledger.

BTC is paid to a gateway deposit address. With --external the command prints
the address and waits for a payment made from any wallet; otherwise the local
bitcoind wallet pays it. LUNA is sent from the local terra key, or from --from.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := asset.Lookup(args[0])
			if err != nil {
				return err
			}
			var amount *big.Int
			if len(args) == 2 {
				if amount, err = a.ParseAmount(args[1]); err != nil {
					return err
				}
			} else if !external {
				return fmt.Errorf("amount is required unless --external is set")
			}

			return withClient(cmd, func(ctx context.Context, client *core.Client) error {
				req := core.DepositRequest{Asset: a, Amount: amount, From: from, External: external}
				outcome, err := client.Deposit(ctx, req, func(gw *bridge.Gateway) {
					if addr := gw.WatchAddress(); addr != "" {
						fmt.Printf("Gateway %s: send %s to %s\n", gw.ID, a.Symbol, addr)
					}
				})
				return finishTransfer(ctx, client, outcome, err, retries, outputFormat)
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Funding account for account-style deposits")
	cmd.Flags().BoolVar(&external, "external", false, "Wait for a deposit paid outside flipd")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry a retryable failure this many times")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func withdrawCmd() *cobra.Command {
	var (
		retries      int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "withdraw [symbol] [recipient] [amount]",
		Short: "Release escrowed BTC or LUNA to a native-chain recipient",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := asset.Lookup(args[0])
			if err != nil {
				return err
			}
			amount, err := a.ParseAmount(args[2])
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, client *core.Client) error {
				outcome, err := client.Withdraw(ctx, a, args[1], amount)
				return finishTransfer(ctx, client, outcome, err, retries, outputFormat)
			})
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 0, "Retry a retryable failure this many times")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

// finishTransfer retries a retryable failure up to retries times, then prints
// the journaled transfer.
func finishTransfer(ctx context.Context, client *core.Client, outcome pipeline.Outcome, err error, retries int, format string) error {
	for attempt := 0; err == nil && outcome.State == pipeline.StateFailed && outcome.Retryable && attempt < retries; attempt++ {
		fmt.Printf("Transfer %s failed on %s leg: %v; retrying (%d/%d)\n", outcome.TxID, outcome.Leg, outcome.Err, attempt+1, retries)
		outcome, err = client.Retry(ctx, outcome.TxID)
	}
	if outcome.TxID != "" {
		if view, viewErr := client.GetTransfer(ctx, outcome.TxID); viewErr == nil {
			if printErr := printOutput(view, format); printErr != nil {
				return printErr
			}
		}
	}
	if err != nil {
		return err
	}
	if outcome.State == pipeline.StateFailed {
		return fmt.Errorf("transfer %s failed on %s leg: %w", outcome.TxID, outcome.Leg, outcome.Err)
	}
	return nil
}

func openGameCmd() *cobra.Command {
	var gasLimit uint64

	cmd := &cobra.Command{
		Use:   "open-game [symbol] [amount]",
		Short: "Wager an escrowed amount in a new game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := asset.Lookup(args[0])
			if err != nil {
				return err
			}
			amount, err := a.ParseAmount(args[1])
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, client *core.Client) error {
				h, err := client.OpenGame(ctx, a, amount, callOptions(gasLimit)...)
				if err != nil {
					return err
				}
				fmt.Printf("Opened %s %s game in %s\n", a.FormatAmount(amount), a.Symbol, h.Hash)
				return nil
			})
		},
	}

	cmd.Flags().Uint64Var(&gasLimit, "gas", 0, "Gas limit, estimated when 0")
	return cmd
}

func acceptGameCmd() *cobra.Command {
	var gasLimit uint64

	cmd := &cobra.Command{
		Use:   "accept-game [index] [amount]",
		Short: "Match the wager of an open game",
		Long: `Match the wager of the open game at index. The amount must equal the
wager and is given in the game's asset.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil || index < 0 {
				return fmt.Errorf("invalid game index %q", args[0])
			}

			return withClient(cmd, func(ctx context.Context, client *core.Client) error {
				if err := client.Refresh(ctx); err != nil {
					return err
				}
				game, ok := findGame(client.GetOpenGames(), index)
				if !ok {
					return fmt.Errorf("game %d is not open", index)
				}
				a, err := asset.Lookup(game.Symbol)
				if err != nil {
					return err
				}
				amount, err := a.ParseAmount(args[1])
				if err != nil {
					return err
				}

				h, err := client.AcceptGame(ctx, index, amount, callOptions(gasLimit)...)
				if err != nil {
					return err
				}
				fmt.Printf("Accepted game %d in %s\n", index, h.Hash)
				return nil
			})
		},
	}

	cmd.Flags().Uint64Var(&gasLimit, "gas", 0, "Gas limit, estimated when 0")
	return cmd
}

func callOptions(gasLimit uint64) []ledger.CallOption {
	if gasLimit == 0 {
		return nil
	}
	return []ledger.CallOption{ledger.WithGasLimit(gasLimit)}
}

func findGame(games []ledger.Game, index int) (ledger.Game, bool) {
	for _, g := range games {
		if g.Index == index {
			return g, true
		}
	}
	return ledger.Game{}, false
}
