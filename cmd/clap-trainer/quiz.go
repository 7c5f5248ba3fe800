package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(quizCmd)
}

var quizCmd = &cobra.Command{
	Use:   "quiz [preset]",
	Short: "Play a pattern, record the next bar and score it",
	Long: `Play a pattern once, then listen for one bar while you clap it back.
Each slot is scored correct, missed, extra or silent and the attempt is
saved to history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHeadless(cmd.OutOrStdout(), args, true)
	},
}
