package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clap-trainer/api"
)

var (
	addr    string
	origins []string
)

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "localhost:8420", "listen address")
	serveCmd.Flags().StringSliceVar(&origins, "origin", nil, "allowed CORS origins (default any)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve presets, history and stats as read-only JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		presets, history, err := openStores()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "listening on http://%s\n", addr)
		return api.New(presets, history).ListenAndServe(addr, origins)
	},
}
