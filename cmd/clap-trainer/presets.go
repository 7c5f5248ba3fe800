package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"clap-trainer/pattern"
	"clap-trainer/store"
)

var (
	patternFlag string
	pickupFlag  bool
)

func init() {
	presetsCmd.AddCommand(presetsShowCmd, presetsSaveCmd, presetsDeleteCmd)
	presetsSaveCmd.Flags().BoolVar(&pickupFlag, "pickup", false, "play the pickup cue with this preset")
	rootCmd.AddCommand(presetsCmd)
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in and saved patterns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		presets, _, err := openStores()
		if err != nil {
			return err
		}
		all, err := presets.All()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, pr := range all {
			p, err := pr.Pattern()
			if err != nil {
				continue
			}
			kind := "built-in"
			if pr.IsCustom {
				kind = "custom"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", pr.ID, pr.Name, kind, p)
		}
		return w.Flush()
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one preset slot by slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		presets, _, err := openStores()
		if err != nil {
			return err
		}
		pr, err := presets.Find(args[0])
		if err != nil {
			return err
		}
		p, err := pr.Pattern()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n%s\n\n", pr.Name, pr.ID, p)
		for _, s := range p.Slots() {
			if s.Enabled {
				fmt.Fprintf(out, "  %2d  %-4s %-4s %s\n", s.Index, s.Label, s.Role, s.Accent())
			}
		}
		return nil
	},
}

var presetsSaveCmd = &cobra.Command{
	Use:   "save <name> <pattern>",
	Short: `Save a pattern written as x and . per slot, e.g. "x..x x... x..x x..."`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pattern.Parse(strings.Join(args[1:], ""))
		if err != nil {
			return err
		}
		presets, _, err := openStores()
		if err != nil {
			return err
		}
		pr := pattern.NewCustom(args[0], p, pickupFlag, time.Now())
		if err := presets.Save(pr); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", pr.ID)
		return nil
	},
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		presets, _, err := openStores()
		if err != nil {
			return err
		}
		return presets.Delete(args[0])
	},
}

// resolvePattern picks what a headless run plays: --pattern, then a
// preset id or name, then the last preset, then the first built-in
func resolvePattern(presets *store.Presets, args []string) (pattern.Pattern, string, bool, error) {
	if patternFlag != "" {
		p, err := pattern.Parse(patternFlag)
		return p, "", cfg.Session.Pickup, err
	}

	ref := cfg.Session.LastPreset
	if len(args) > 0 {
		ref = args[0]
	}
	if ref == "" {
		ref = pattern.BuiltIns()[0].ID
	}

	pr, err := presets.Find(ref)
	if errors.Is(err, store.ErrNotFound) {
		all, _ := presets.All()
		for _, c := range all {
			if strings.EqualFold(c.Name, ref) {
				pr, err = c, nil
				break
			}
		}
	}
	if err != nil {
		return pattern.Pattern{}, "", false, err
	}
	p, err := pr.Pattern()
	return p, pr.Name, pr.UsePickup || cfg.Session.Pickup, err
}
