package midi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"clap-trainer/audio"
	"clap-trainer/clock"
	"clap-trainer/onset"
	"clap-trainer/pattern"
)

type fakeController struct {
	pads  chan PadEvent
	notes chan NoteEvent

	mu      sync.Mutex
	batches [][]LEDUpdate
}

func newFakeController() *fakeController {
	return &fakeController{pads: make(chan PadEvent, 8), notes: make(chan NoteEvent, 8)}
}

func (f *fakeController) ID() string                   { return "fake" }
func (f *fakeController) Type() ControllerType         { return ControllerLaunchpad }
func (f *fakeController) PadEvents() <-chan PadEvent   { return f.pads }
func (f *fakeController) NoteEvents() <-chan NoteEvent { return f.notes }
func (f *fakeController) Close() error                 { return nil }
func (f *fakeController) SetLEDBatch(u []LEDUpdate) error {
	f.mu.Lock()
	f.batches = append(f.batches, u)
	f.mu.Unlock()
	return nil
}

type sink struct {
	mu   sync.Mutex
	msgs []gomidi.Message
}

func (s *sink) send(m gomidi.Message) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *sink) at(i int) gomidi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[i]
}

func TestSlotPadMapping(t *testing.T) {
	seen := map[[2]int]bool{}
	for slot := 0; slot < 32; slot++ {
		row, col := PadForSlot(slot)
		assert.Equal(t, slot, SlotForPad(row, col))
		seen[[2]int{row, col}] = true
	}
	assert.Len(t, seen, 32)

	row, col := PadForSlot(0)
	assert.Equal(t, [2]int{7, 0}, [2]int{row, col})
	row, col = PadForSlot(31)
	assert.Equal(t, [2]int{4, 7}, [2]int{row, col})
	assert.Equal(t, -1, SlotForPad(3, 0))
	assert.Equal(t, -1, SlotForPad(8, 0))
}

func TestLaunchpadNotesAndPalette(t *testing.T) {
	assert.Equal(t, uint8(11), rowColToNote(0, 0))
	assert.Equal(t, uint8(88), rowColToNote(7, 7))
	for note := uint8(0); note < 128; note++ {
		if row, col := noteToRowCol(note); row >= 0 {
			assert.Equal(t, note, rowColToNote(row, col))
		}
	}
	row, _ := noteToRowCol(19)
	assert.Equal(t, -1, row, "the side column is not a pad")

	assert.Equal(t, uint8(0), paletteIndex(ColorSubOff))
	assert.Equal(t, uint8(9), paletteIndex(ColorMainOn))
	assert.Equal(t, uint8(43), paletteIndex(ColorMainOff))
	assert.Equal(t, uint8(119), paletteIndex([3]uint8{250, 250, 240}))
}

func TestGridDiffSendsOnlyChanges(t *testing.T) {
	g := NewGrid(newFakeController())
	g.SetPattern(pattern.FromIndices(0, 5))

	g.mu.Lock()
	first := g.diff(g.render())
	g.mu.Unlock()
	assert.Len(t, first, 32)

	g.SetPlayhead(5)
	g.mu.Lock()
	second := g.diff(g.render())
	g.mu.Unlock()
	require.Len(t, second, 1)
	row, col := PadForSlot(5)
	assert.Equal(t, LEDUpdate{Row: row, Col: col, Color: ColorHead, Channel: ChannelPulse}, second[0])

	g.mu.Lock()
	assert.Empty(t, g.diff(g.render()))
	g.mu.Unlock()
}

func TestGridRunForwardsPressesAndFlushes(t *testing.T) {
	ctrl := newFakeController()
	g := NewGrid(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	row, col := PadForSlot(9)
	ctrl.pads <- PadEvent{Row: row, Col: col, Velocity: 100}
	ctrl.pads <- PadEvent{Row: 0, Col: 0, Velocity: 100}

	select {
	case slot := <-g.Presses():
		assert.Equal(t, 9, slot)
	case <-time.After(time.Second):
		t.Fatal("no press")
	}
	assert.Eventually(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return len(ctrl.batches) > 0
	}, time.Second, time.Millisecond)
}

func TestVelocity(t *testing.T) {
	assert.Equal(t, uint8(80), Velocity(0))
	assert.Equal(t, uint8(127), Velocity(4))
	assert.Equal(t, uint8(50), Velocity(-4))
	assert.Equal(t, uint8(1), Velocity(-100))
}

func TestKits(t *testing.T) {
	assert.Equal(t, uint8(39), GetKit("gm").NoteFor(audio.Clap))
	assert.Equal(t, uint8(40), GetKit("rd8").NoteFor(audio.Snare))
	assert.Equal(t, uint8(36), GetKit("nope").NoteFor(audio.Kick))
	assert.Equal(t, []string{"er1", "gm", "rd8", "tr8s"}, KitNames())
}

func TestVoiceSendsAtScheduledTime(t *testing.T) {
	src := clock.NewManual()
	out := &sink{}
	v := NewVoice(out.send, GetKit("gm"), audio.Clap, 10, src, src)

	v.SetVolume(4, 0)
	v.TriggerAttackRelease(100*time.Millisecond, 50*time.Millisecond)

	armed := func() bool { return src.Pending() > 0 }
	require.Eventually(t, armed, time.Second, time.Millisecond)
	assert.Zero(t, out.count())

	src.Advance(50 * time.Millisecond)
	require.Eventually(t, func() bool { return out.count() == 1 }, time.Second, time.Millisecond)
	var ch, key, vel uint8
	require.True(t, out.at(0).GetNoteOn(&ch, &key, &vel))
	assert.Equal(t, [3]uint8{9, 39, 127}, [3]uint8{ch, key, vel})

	require.Eventually(t, armed, time.Second, time.Millisecond)
	src.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return out.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, byte(0x89), out.at(1)[0])

	v.Dispose()
	v.TriggerAttackRelease(time.Millisecond, 0)
	assert.Equal(t, 3, out.count(), "dispose releases the note once")
}

func TestVoiceCancelDropsQueuedNotes(t *testing.T) {
	src := clock.NewManual()
	out := &sink{}
	v := NewVoice(out.send, GetKit("gm"), audio.Clap, 10, src, src)
	defer v.Dispose()

	v.TriggerAttackRelease(50*time.Millisecond, 30*time.Millisecond)
	require.Eventually(t, func() bool { return src.Pending() > 0 }, time.Second, time.Millisecond)

	v.Cancel()
	require.Equal(t, 1, out.count())
	assert.Equal(t, byte(0x89), out.at(0)[0], "cancel releases the note")

	for i := 0; i < 10; i++ {
		src.Advance(20 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, out.count(), "the queued hit never plays")
}

func TestTapListener(t *testing.T) {
	ctrl := newFakeController()
	tl := clock.NewManual()
	tl.Advance(2 * time.Second)

	ctrl.notes <- NoteEvent{Note: 36, Velocity: 127} // before the window
	l, err := (&Tap{Controller: ctrl, Timeline: tl}).Acquire()
	require.NoError(t, err)

	got := make(chan onset.Onset, 4)
	require.NoError(t, l.Start(func(o onset.Onset) { got <- o }))
	ctrl.notes <- NoteEvent{Note: 38, Velocity: 127}

	select {
	case o := <-got:
		assert.Equal(t, 2*time.Second, o.At)
		assert.InDelta(t, 1.0, o.RMS, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("no onset")
	}
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Start(func(onset.Onset) {}), onset.ErrInputUnavailable)

	_, err = (&Tap{}).Acquire()
	assert.ErrorIs(t, err, onset.ErrInputUnavailable)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ControllerLaunchpad, classify("Launchpad X LPX MIDI"))
	assert.Equal(t, ControllerUnknown, classify("Launchpad X LPX DAW"))
	assert.Equal(t, ControllerUnknown, classify("Midi Through Port-0"))
	assert.Equal(t, ControllerPads, classify("MPD218 Port A"))
}
