package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdkversion "github.com/cosmos/cosmos-sdk/version"
	"github.com/spf13/cobra"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/api"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/config"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/core"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/logger"
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(depositCmd())
	rootCmd.AddCommand(withdrawCmd())
	rootCmd.AddCommand(openGameCmd())
	rootCmd.AddCommand(acceptGameCmd())
	rootCmd.AddCommand(queryCmd())
}

func initCmd() *cobra.Command {
	var (
		contract string
		user     string
		network  string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to the node home",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := cmd.Flags().GetString(flagHome)

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = home
			if contract != "" {
				cfg.ContractAddress = contract
			}
			if user != "" {
				cfg.UserAddress = user
			}
			if network != "" {
				cfg.Network = config.Network(network)
			}

			if !force {
				if _, err := config.Load(home); err == nil {
					return fmt.Errorf("config already exists in %s, use --force to overwrite", home)
				}
			}
			if err := config.Save(cfg, home); err != nil {
				return err
			}
			fmt.Printf("Wrote %s/%s/%s\n", home, constant.ConfigSubdir, constant.ConfigFileName)
			return nil
		},
	}

	cmd.Flags().StringVar(&contract, "contract", "", "Flip ledger contract address")
	cmd.Flags().StringVar(&user, "user", "", "Holder whose balances are reconciled")
	cmd.Flags().StringVar(&network, "network", "", "Bridge network (testnet|mainnet)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the flip client with its query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.Init(cfg)

			client, err := core.New(&cfg, log)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			server := api.NewServer(client, log, cfg.QueryServerPort)
			if err := server.Start(); err != nil {
				cancel()
				_ = client.Stop()
				return err
			}

			interval := cfg.GetPollingInterval(constant.ChainEthereum)
			if err := client.Start(ctx, interval); err != nil {
				cancel()
				_ = server.Stop()
				_ = client.Stop()
				return err
			}

			<-ctx.Done()
			log.Info().Msg("shutting down")
			if err := server.Stop(); err != nil {
				log.Warn().Err(err).Msg("failed to stop query server")
			}
			return client.Stop()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print flipd version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Name:       %s\n", sdkversion.Name)
			fmt.Printf("App Name:   %s\n", sdkversion.AppName)
			fmt.Printf("Version:    %s\n", sdkversion.Version)
			fmt.Printf("Commit:     %s\n", sdkversion.Commit)
			fmt.Printf("Build Tags: %s\n", sdkversion.BuildTags)
		},
	}
}

// loadConfig reads the config of the --home node
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	home, _ := cmd.Flags().GetString(flagHome)
	cfg, err := config.Load(home)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config (run `flipd init` first): %w", err)
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = home
	}
	return cfg, nil
}

// withClient runs fn against a client built from the --home config. The
// client is stopped once fn returns or the process is interrupted.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *core.Client) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.Init(cfg)

	client, err := core.New(&cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	err = fn(ctx, client)
	cancel()
	if stopErr := client.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
