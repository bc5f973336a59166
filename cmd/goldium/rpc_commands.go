package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

func rpcCommands() *cli.Command {
	return &cli.Command{
		Name:  "rpc",
		Usage: "Solana JSON-RPC through the server proxy",
		Subcommands: []*cli.Command{
			rpcCallCommand(),
		},
	}
}

func rpcCallCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Call an RPC method through /api/solana-rpc",
		ArgsUsage: "METHOD [PARAMS_JSON]",
		Description: `Sends one JSON-RPC request through the proxy, which tries each
configured endpoint in order.

Example:
  goldium rpc call getBalance '["9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"]' --jq .value`,
		Flags: []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("method is required")
			}
			method := c.Args().Get(0)

			var params any
			if raw := c.Args().Get(1); raw != "" {
				if err := json.Unmarshal([]byte(raw), &params); err != nil {
					return fmt.Errorf("params must be JSON: %w", err)
				}
			}

			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			resp, err := cl.ProxyRPC(c.Context, method, params)
			if err != nil {
				return err
			}
			if resp.Error != nil {
				return resp.Error
			}

			var result any
			if err := json.Unmarshal(resp.Result, &result); err != nil {
				return fmt.Errorf("failed to decode result: %w", err)
			}
			return emit(c, c.App.Writer, result, nil)
		},
	}
}
