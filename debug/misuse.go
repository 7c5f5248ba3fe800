package debug

import "sync/atomic"

var strict atomic.Bool

// SetStrict makes Misuse panic. Development builds and tests turn it on;
// release builds leave it off so misuse is logged and ignored.
func SetStrict(on bool) { strict.Store(on) }

// Strict reports whether Misuse panics
func Strict() bool { return strict.Load() }

// Misuse records a programming error such as a double start. It always
// logs, panics in strict mode, and returns err so callers can hand it back.
func Misuse(category string, err error) error {
	Log(category, "misuse: %v", err)
	if strict.Load() {
		panic(err)
	}
	return err
}
