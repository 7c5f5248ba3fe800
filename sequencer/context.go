package sequencer

import (
	"clap-trainer/audio"
	"clap-trainer/clock"
	"clap-trainer/debug"
)

// Context is the shared audio context: one transport, one draw channel,
// the pattern voice and the countdown cue. Everything that plays or
// displays musical time goes through it.
type Context struct {
	Transport *clock.Transport
	Draw      *clock.Draw
	Voice     audio.Voice
	Cue       audio.Cue
}

// NewContext wires a transport and draw channel on src
func NewContext(src clock.TimeSource, voice audio.Voice, cue audio.Cue, opts ...clock.Option) *Context {
	if src == nil {
		src = clock.System()
	}
	t := clock.NewTransport(src, opts...)
	return &Context{
		Transport: t,
		Draw:      clock.NewDraw(t, src),
		Voice:     voice,
		Cue:       cue,
	}
}

// Reset stops the transport and drops every scheduled audio and visual
// callback, along with hits the voice queued ahead. Must not be called
// from a transport or draw callback.
func (c *Context) Reset() {
	c.Draw.Cancel()
	c.Transport.Stop()
	c.Transport.CancelAll()
	if c.Voice != nil {
		c.Voice.Cancel()
	}
	// the transport may have queued visuals before it stopped
	c.Draw.Cancel()
	debug.Log("seq", "context reset")
}

// SetVoice swaps the pattern voice. The old voice is disposed.
func (c *Context) SetVoice(v audio.Voice) {
	c.Reset()
	if c.Voice != nil {
		c.Voice.Dispose()
	}
	c.Voice = v
}

// Close resets and releases the draw loop and the voice
func (c *Context) Close() {
	c.Reset()
	c.Draw.Close()
	if c.Voice != nil {
		c.Voice.Dispose()
	}
}
