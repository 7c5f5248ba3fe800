package midi

import (
	"container/heap"
	"math"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"clap-trainer/audio"
	"clap-trainer/clock"
	"clap-trainer/debug"
)

// Sender writes one message to an output port
type Sender func(gomidi.Message) error

// baseVelocity is the velocity of a 0 dB hit
const baseVelocity = 80

type outEvent struct {
	at       time.Duration
	seq      uint64
	on       bool
	velocity uint8
}

type outQueue []outEvent

func (q outQueue) Len() int { return len(q) }
func (q outQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q outQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *outQueue) Push(x any)   { *q = append(*q, x.(outEvent)) }
func (q *outQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// Voice plays a synth sound as a drum note on an external MIDI device.
// Notes are queued by timeline time and sent by an output loop.
type Voice struct {
	send     Sender
	channel  uint8
	note     uint8
	timeline clock.Now
	src      clock.TimeSource

	mu       sync.Mutex
	volume   audio.VolumeTrack
	queue    outQueue
	seq      uint64
	disposed bool

	wake     chan struct{}
	stopChan chan struct{}
	done     chan struct{}
}

// NewVoice starts an output loop sending kit's note for sound on channel
// (1-16)
func NewVoice(send Sender, kit DrumKit, sound audio.SoundType, channel uint8, timeline clock.Now, src clock.TimeSource) *Voice {
	if channel < 1 || channel > 16 {
		channel = 10
	}
	if src == nil {
		src = clock.System()
	}
	v := &Voice{
		send:     send,
		channel:  channel - 1,
		note:     kit.NoteFor(sound),
		timeline: timeline,
		src:      src,
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go v.outputLoop()
	return v
}

// Velocity maps a volume in dB to a MIDI velocity
func Velocity(db float64) uint8 {
	v := math.Round(baseVelocity * math.Pow(10, db/20))
	if v < 1 {
		return 1
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

func (v *Voice) SetVolume(db float64, at time.Duration) {
	v.mu.Lock()
	v.volume.Set(db, at)
	v.mu.Unlock()
}

func (v *Voice) TriggerAttackRelease(dur, at time.Duration) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	vel := Velocity(v.volume.At(at))
	heap.Push(&v.queue, outEvent{at: at, seq: v.seq, on: true, velocity: vel})
	heap.Push(&v.queue, outEvent{at: at + dur, seq: v.seq + 1})
	v.seq += 2
	v.mu.Unlock()

	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// Cancel drops every queued message and releases the note
func (v *Voice) Cancel() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.queue = nil
	// under the lock so a note the loop already popped cannot follow it
	err := v.send(gomidi.NoteOff(v.channel, v.note))
	v.mu.Unlock()

	select {
	case v.wake <- struct{}{}:
	default:
	}
	if err != nil {
		debug.Log("midi", "send failed: %v", err)
	}
}

// Dispose stops the output loop. A note left hanging is released.
func (v *Voice) Dispose() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.disposed = true
	v.queue = nil
	close(v.stopChan)
	v.mu.Unlock()

	<-v.done
	v.send(gomidi.NoteOff(v.channel, v.note))
}

// outputLoop sends the earliest queued message once it is due
func (v *Voice) outputLoop() {
	defer close(v.done)

	for {
		v.mu.Lock()
		if len(v.queue) == 0 {
			v.mu.Unlock()
			select {
			case <-v.stopChan:
				return
			case <-v.wake:
				continue
			}
		}
		next := v.queue[0]
		wait := next.at - v.timeline.Now()
		v.mu.Unlock()

		if wait > 0 {
			timer := v.src.NewTimer(wait)
			select {
			case <-v.stopChan:
				timer.Stop()
				return
			case <-v.wake:
				// an earlier note may have been queued
				timer.Stop()
				continue
			case <-timer.C():
			}
		}

		v.mu.Lock()
		if v.disposed || len(v.queue) == 0 || v.queue[0].seq != next.seq {
			v.mu.Unlock()
			continue
		}
		evt := heap.Pop(&v.queue).(outEvent)
		var err error
		if evt.on {
			err = v.send(gomidi.NoteOn(v.channel, v.note, evt.velocity))
		} else {
			err = v.send(gomidi.NoteOff(v.channel, v.note))
		}
		v.mu.Unlock()

		if err != nil {
			debug.Log("midi", "send failed: %v", err)
		}
		debug.LogEvery(32, "dispatch", "ch=%d note=%d on=%v at=%v", v.channel+1, v.note, evt.on, evt.at)
	}
}
