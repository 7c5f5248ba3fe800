package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"clap-trainer/quiz"
)

var (
	limitFlag   int
	byPattern   string
	clearFlag   bool
	showDetails bool
)

func init() {
	historyCmd.Flags().IntVarP(&limitFlag, "limit", "n", 10, "newest attempts to show, 0 for all")
	historyCmd.Flags().StringVar(&byPattern, "pattern", "", "only attempts on this pattern name")
	historyCmd.Flags().BoolVar(&clearFlag, "clear", false, "delete all attempts")
	historyCmd.Flags().BoolVarP(&showDetails, "verbose", "v", false, "print the full summary of each attempt")
	historyCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past attempts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, history, err := openStores()
		if err != nil {
			return err
		}
		if clearFlag {
			return history.Clear()
		}

		var records []quiz.Record
		if byPattern != "" {
			records, err = history.ByPattern(byPattern)
		} else {
			records, err = history.List()
		}
		if err != nil {
			return err
		}
		if limitFlag > 0 && len(records) > limitFlag {
			records = records[:limitFlag]
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "no attempts yet")
			return nil
		}
		if showDetails {
			for _, r := range records {
				fmt.Fprintf(out, "%s  %s @ %.0fbpm  (%s)\n%s\n%s\n\n",
					r.Timestamp.Format("2006-01-02 15:04"), r.PatternName, r.BPM, r.ID,
					quiz.Summary(r.Evaluation), outcomeLine(r.Evaluation))
			}
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%.0fbpm\t%.1f%%\t%s\n",
				r.Timestamp.Format("2006-01-02 15:04"), r.PatternName, r.BPM,
				r.Evaluation.Accuracy, quiz.GradeFor(r.Evaluation.Accuracy))
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize all attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, history, err := openStores()
		if err != nil {
			return err
		}
		s, err := history.Statistics()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "attempts:       %d\n", s.Total)
		fmt.Fprintf(out, "average:        %.1f%%\n", s.AverageAccuracy)
		fmt.Fprintf(out, "best:           %.1f%%\n", s.BestAccuracy)
		fmt.Fprintf(out, "timing error:   %.0fms\n", s.AverageTimingError)
		return nil
	},
}
