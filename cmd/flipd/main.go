package main

import (
	"fmt"
	"os"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"
)

func main() {
	// Keys and RPC passwords may come from a .env file
	_ = godotenv.Load()

	setupSDKConfig()

	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.OutOrStderr(), err)
		os.Exit(1)
	}
}

func setupSDKConfig() {
	config := sdk.GetConfig()

	// Terra prefixes
	config.SetBech32PrefixForAccount("terra", "terrapub")
	config.SetBech32PrefixForValidator("terravaloper", "terravaloperpub")
	config.SetBech32PrefixForConsensusNode("terravalcons", "terravalconspub")
	config.SetCoinType(330)

	config.Seal()
}
