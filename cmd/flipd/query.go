package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

// QueryOutput is a query server answer as printed by the CLI
type QueryOutput struct {
	Data        interface{} `yaml:"data" json:"data"`
	LastFetched time.Time   `yaml:"last_fetched" json:"last_fetched"`
}

// QueryResponse represents the standard query response format from HTTP API
type QueryResponse struct {
	Data        json.RawMessage `json:"data"`
	LastFetched time.Time       `json:"last_fetched"`
}

// ErrorResponse represents an error response from HTTP API
type ErrorResponse struct {
	Error string `json:"error"`
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Query a running flipd",
	}

	cmd.AddCommand(
		gamesCmd(),
		balancesCmd(),
		transfersCmd(),
		transferCmd(),
	)
	return cmd
}

func gamesCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "games",
		Short: "List the open games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryAndPrint(cmd, "/api/v1/games", nil, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func balancesCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show the user and contract balance snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryAndPrint(cmd, "/api/v1/balances", nil, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func transfersCmd() *cobra.Command {
	var (
		limit        int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "List journaled transfers, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if limit > 0 {
				params.Set("limit", fmt.Sprint(limit))
			}
			return queryAndPrint(cmd, "/api/v1/transfers", params, outputFormat)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of transfers (server default when 0)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func transferCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "transfer [tx-id]",
		Short: "Show one journaled transfer with its legs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryAndPrint(cmd, "/api/v1/transfer", url.Values{"id": {args[0]}}, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

// queryAndPrint fetches path from the query server of the --home node
func queryAndPrint(cmd *cobra.Command, path string, params url.Values, format string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	target := fmt.Sprintf("http://localhost:%d%s", cfg.QueryServerPort, path)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	resp, err := http.Get(target)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("server error: %s", errResp.Error)
	}

	var queryResp QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	var data interface{}
	if err := json.Unmarshal(queryResp.Data, &data); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return printOutput(QueryOutput{Data: data, LastFetched: queryResp.LastFetched}, format)
}

// printOutput prints the output in the specified format
func printOutput(data interface{}, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
