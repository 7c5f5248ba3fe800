package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var semitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// NoteNumber parses scientific pitch notation ("C5", "F#4", "Bb2") into a
// MIDI note number. C4 is 60.
func NoteNumber(name string) (int, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return 0, fmt.Errorf("invalid note %q", name)
	}
	base, ok := semitones[strings.ToUpper(name[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note %q", name)
	}
	rest := name[1:]
	switch rest[0] {
	case '#':
		base++
		rest = rest[1:]
	case 'b':
		base--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid note %q", name)
	}
	n := (octave+1)*12 + base
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("note %q out of range", name)
	}
	return n, nil
}

// NoteFrequency returns the equal-tempered frequency of name, A4 = 440 Hz
func NoteFrequency(name string) (float64, error) {
	n, err := NoteNumber(name)
	if err != nil {
		return 0, err
	}
	return 440 * math.Pow(2, float64(n-69)/12), nil
}
