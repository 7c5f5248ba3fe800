package pattern

import (
	"fmt"
	"math/rand"

	"clap-trainer/position"
)

// Difficulty selects a random question generator
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
	Hell   Difficulty = "hell"
)

// Difficulties lists generators from easiest to hardest
func Difficulties() []Difficulty {
	return []Difficulty{Easy, Medium, Hard, Hell}
}

// choice is a weighted set of offsets (0=beat, 1=e, 2=&, 3=a) within a beat
type choice struct {
	upTo    float64
	offsets []int
}

var (
	// 'a' never appears without the beat it leads into
	mediumChoices = []choice{
		{0.4, []int{0}},
		{0.7, []int{0, 3}},
	}
	// no '&'
	hardChoices = []choice{
		{0.15, []int{0, 1, 3}},
		{0.30, []int{1, 3}},
		{0.45, []int{0, 1}},
		{0.60, []int{0, 3}},
		{0.70, []int{1}},
		{0.80, []int{3}},
		{0.90, []int{0}},
	}
	hellChoices = []choice{
		{0.20, []int{0, 1, 2, 3}},
		{0.35, []int{1, 2, 3}},
		{0.50, []int{0, 1, 3}},
		{0.65, []int{0, 2, 3}},
		{0.75, []int{1, 3}},
		{0.85, []int{1, 2}},
		{0.92, []int{2, 3}},
		{0.97, []int{2}},
	}
)

// Generate builds a random question. rng makes the result reproducible.
func Generate(d Difficulty, rng *rand.Rand) (Pattern, error) {
	switch d {
	case Easy:
		return generateEasy(rng), nil
	case Medium:
		return generateByBeat(rng, mediumChoices), nil
	case Hard:
		return generateByBeat(rng, hardChoices), nil
	case Hell:
		return generateByBeat(rng, hellChoices), nil
	default:
		return New(), fmt.Errorf("unknown difficulty %q", d)
	}
}

// generateEasy enables 1-6 quarter notes
func generateEasy(rng *rand.Rand) Pattern {
	p := New()
	quarters := rng.Perm(position.PatternBeats)
	n := rng.Intn(6) + 1
	for _, q := range quarters[:n] {
		p.Enable(q * position.SlotsPerBeat)
	}
	return p
}

func generateByBeat(rng *rand.Rand, choices []choice) Pattern {
	p := New()
	for beat := 0; beat < position.PatternBeats; beat++ {
		base := beat * position.SlotsPerBeat
		r := rng.Float64()
		for _, c := range choices {
			if r < c.upTo {
				for _, off := range c.offsets {
					p.Enable(base + off)
				}
				break
			}
		}
	}
	return p
}
