package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clap-trainer/config"
	"clap-trainer/pattern"
	"clap-trainer/quiz"
	"clap-trainer/store"
)

func withConfig(t *testing.T) {
	t.Helper()
	prevCfg, prevPattern := cfg, patternFlag
	cfg = config.DefaultConfig()
	patternFlag = ""
	t.Cleanup(func() { cfg, patternFlag = prevCfg, prevPattern })
}

func TestResolvePattern(t *testing.T) {
	withConfig(t)
	presets := store.NewPresets(store.NewMemoryKV())
	mine := pattern.NewCustom("Offbeats", pattern.FromIndices(2, 6), true, time.UnixMilli(7))
	require.NoError(t, presets.Save(mine))

	p, name, _, err := resolvePattern(presets, nil)
	require.NoError(t, err)
	assert.Equal(t, "Triple Step (×4)", name, "first built-in by default")
	assert.Equal(t, 12, p.EnabledCount())

	p, name, pickup, err := resolvePattern(presets, []string{"offbeats"})
	require.NoError(t, err)
	assert.Equal(t, "Offbeats", name, "names match case-insensitively")
	assert.True(t, pickup)
	assert.Equal(t, []int{2, 6}, p.Enabled())

	cfg.Session.LastPreset = "step-hold"
	_, name, _, err = resolvePattern(presets, nil)
	require.NoError(t, err)
	assert.Equal(t, "Step-Hold (×4)", name)

	_, _, _, err = resolvePattern(presets, []string{"nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	patternFlag = "x... .... x... .... x... .... x... ...."
	p, name, _, err = resolvePattern(presets, []string{"step-step"})
	require.NoError(t, err)
	assert.Empty(t, name, "an ad hoc pattern has no name")
	assert.Equal(t, []int{0, 8, 16, 24}, p.Enabled())
}

func TestOutcomeLine(t *testing.T) {
	p := pattern.FromIndices(0, 4)
	onsets := []quiz.CapturedOnset{quiz.Capture(0, 0, 120)}
	ev := quiz.Evaluate(p, onsets, 120)
	assert.Equal(t, "o... x... .... .... .... .... .... ....", outcomeLine(ev))
}
