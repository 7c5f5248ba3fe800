package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clap-trainer/audio"
	"clap-trainer/midi"
	"clap-trainer/onset"
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio inputs, MIDI ports, sounds and drum kits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "=== Audio inputs ===")
		inputs, err := onset.InputDevices()
		if err != nil {
			fmt.Fprintf(out, "  unavailable: %v\n", err)
		}
		for _, d := range inputs {
			mark := " "
			if d.Default {
				mark = "*"
			}
			fmt.Fprintf(out, " %s %s (%d ch, %.0f Hz)\n", mark, d.Name, d.Channels, d.SampleRate)
		}

		fmt.Fprintf(out, "\n=== MIDI ports ===\n(waiting up to %v...)\n", midi.ScanTimeout)
		ports, err := midi.Scan(midi.ScanTimeout)
		switch {
		case errors.Is(err, midi.ErrPortsTimeout):
			fmt.Fprintln(out, "TIMEOUT! The MIDI service is hung.")
			fmt.Fprintln(out, "Fix (macOS): sudo killall coreaudiod midiserver")
		case err != nil:
			fmt.Fprintf(out, "  unavailable: %v\n", err)
		default:
			defer midi.CloseDriver()
			fmt.Fprintln(out, "inputs:")
			for i, name := range ports.InNames() {
				fmt.Fprintf(out, "  %d: %s\n", i, name)
			}
			fmt.Fprintln(out, "outputs:")
			for i, name := range ports.OutNames() {
				fmt.Fprintf(out, "  %d: %s\n", i, name)
			}
			for _, name := range ports.InNames() {
				if strings.Contains(strings.ToLower(name), "launchpad") {
					fmt.Fprintf(out, "  -> Launchpad detected: %s\n", name)
				}
			}
		}

		fmt.Fprintln(out, "\n=== Sounds ===")
		for _, s := range audio.Sounds() {
			fmt.Fprintf(out, "  %-10s %s\n", s.Type, s.Label)
		}
		fmt.Fprintf(out, "\n=== MIDI kits ===\n  %s\n", strings.Join(midi.KitNames(), ", "))
		return nil
	},
}
