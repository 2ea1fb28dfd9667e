package main

import (
	"github.com/spf13/cobra"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
)

// flagHome overrides the node home of every command
const flagHome = "home"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "flipd",
		Short:        "Flip coin-flip escrow client",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String(flagHome, constant.DefaultNodeHome, "Node home directory")

	InitRootCmd(rootCmd)

	return rootCmd
}
