package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"clap-trainer/position"
	"clap-trainer/quiz"
)

var (
	loopFlag  bool
	tempoFlag int
)

func init() {
	for _, c := range []*cobra.Command{practiceCmd, quizCmd} {
		c.Flags().StringVarP(&patternFlag, "pattern", "p", "", `pattern as x and . per slot, e.g. "x..x x... x..x x..."`)
		c.Flags().IntVarP(&tempoFlag, "tempo", "t", 0, "tempo in bpm (60-200), default from config")
	}
	practiceCmd.Flags().BoolVarP(&loopFlag, "loop", "l", false, "repeat until interrupted")
	rootCmd.AddCommand(practiceCmd)
}

var practiceCmd = &cobra.Command{
	Use:   "practice [preset]",
	Short: "Play a pattern without scoring",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHeadless(cmd.OutOrStdout(), args, false)
	},
}

// printer draws the time flow as one line per pass
type printer struct {
	out   io.Writer
	done  chan struct{}
	score bool

	phase quiz.Phase
}

func (p *printer) finish() {
	select {
	case p.done <- struct{}{}:
	default:
	}
}

func (p *printer) callbacks() quiz.Callbacks {
	return quiz.Callbacks{
		OnTimeMarker: func(slot int) {
			if position.IsMain(slot) {
				fmt.Fprintf(p.out, "%s ", position.Label(slot))
			}
			if slot == position.TotalSlots-1 {
				fmt.Fprintln(p.out)
			}
		},
		OnCountdown: func(n int) {
			fmt.Fprintf(p.out, "%d... ", n)
		},
		OnPhaseChange: func(ph quiz.Phase) {
			prev := p.phase
			p.phase = ph
			switch ph {
			case quiz.PhasePlaying:
				if prev == quiz.PhaseCountdown {
					fmt.Fprintln(p.out)
				}
				if p.score {
					fmt.Fprintln(p.out, "listen...")
				}
			case quiz.PhaseRecording:
				fmt.Fprintln(p.out, "clap now!")
			case quiz.PhaseEvaluating:
				fmt.Fprintln(p.out, "scoring...")
			case quiz.PhaseIdle:
				if prev != "" && prev != quiz.PhaseResult {
					p.finish()
				}
			}
		},
		OnOnset: func(c quiz.CapturedOnset) {
			slot := c.Slot - position.RecordingOffset
			if slot >= 0 && slot < position.TotalSlots {
				fmt.Fprintf(p.out, "  clap at %s (slot %d)\n", position.Label(slot), slot)
			}
		},
		OnQuizResult: func(rec quiz.Record) {
			fmt.Fprintf(p.out, "\n%s @ %.0fbpm\n%s\n", rec.PatternName, rec.BPM, quiz.Summary(rec.Evaluation))
			fmt.Fprintln(p.out, outcomeLine(rec.Evaluation))
			p.finish()
		},
		OnError: func(err error) {
			fmt.Fprintln(os.Stderr, describe(err))
		},
	}
}

// outcomeLine renders one status character per slot
func outcomeLine(ev quiz.Evaluation) string {
	var b strings.Builder
	for i, br := range ev.Beats {
		if i > 0 && position.IsMain(i) {
			b.WriteByte(' ')
		}
		switch br.Status {
		case quiz.StatusCorrect:
			b.WriteByte('o')
		case quiz.StatusMissed:
			b.WriteByte('x')
		case quiz.StatusExtra:
			b.WriteByte('+')
		default:
			b.WriteByte('.')
		}
	}
	return b.String()
}

// runHeadless plays or quizzes one pattern and returns when it is over
// or on interrupt
func runHeadless(out io.Writer, args []string, score bool) error {
	p := &printer{out: out, done: make(chan struct{}, 1), score: score}
	s, err := openSession(p.callbacks())
	if err != nil {
		return err
	}
	defer s.close()

	pat, name, pickup, err := resolvePattern(s.presets, args)
	if err != nil {
		return err
	}
	if tempoFlag != 0 {
		if err := s.machine.SetBPM(float64(tempoFlag)); err != nil {
			return err
		}
	}
	if err := s.machine.SetPattern(pat, name); err != nil {
		return err
	}
	if err := s.machine.SetPickup(pickup); err != nil {
		return err
	}
	if name == "" {
		name = quiz.CustomName
	}
	fmt.Fprintf(out, "%s @ %.0fbpm\n%s\n\n", name, s.machine.BPM(), pat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if score {
		if s.tap != nil {
			if err := s.attachPads(ctx); err != nil {
				return err
			}
		}
		err = s.machine.Start()
	} else {
		err = s.machine.StartPractice(loopFlag)
	}
	if err != nil {
		return errors.New(describe(err))
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		fmt.Fprintln(out)
		return s.machine.Abort()
	}
	return nil
}
