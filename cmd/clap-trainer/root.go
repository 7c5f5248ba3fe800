package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clap-trainer/config"
	"clap-trainer/debug"
)

var (
	configPath string
	dataDir    string
	debugLog   bool
	strict     bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clap-trainer",
	Short: "Hear a rhythm, clap it back, get scored",
	Long: `clap-trainer plays a one-bar rhythm of 32 sixteenth notes, then
listens for the next bar while you clap it back and scores every slot.

Run without a subcommand for the interactive trainer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debugLog {
			if err := debug.Enable(""); err != nil {
				return fmt.Errorf("enable debug log: %w", err)
			}
		}
		debug.SetStrict(strict)

		if configPath == "" {
			p, err := config.ConfigPath()
			if err != nil {
				return err
			}
			configPath = p
		}
		c, err := config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		cfg = c
		debug.Log("main", "config %s", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		debug.Disable()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/clap-trainer/config.json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "where presets and history are kept")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "write a debug log to "+debug.DefaultPath())
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "panic on API misuse instead of logging it")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
