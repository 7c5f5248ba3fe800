package midi

import (
	"fmt"
	"strings"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"clap-trainer/debug"
)

var ledSendCount uint64

// Launchpad X SysEx bodies, header 00 20 29 02 0C
var (
	sysexProgrammerMode = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}
	sysexFullBrightness = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}
)

// LaunchpadController drives the 8x8 pads of a Novation Launchpad X.
// Every pad press is also a tap note.
type LaunchpadController struct {
	id       string
	send     func(msg gomidi.Message) error
	stopFunc func()

	padChan  chan PadEvent
	noteChan chan NoteEvent
}

// NewLaunchpadController switches the Launchpad into programmer mode and
// starts listening
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	lp := &LaunchpadController{
		id:       id,
		padChan:  make(chan PadEvent, 32),
		noteChan: make(chan NoteEvent, 32),
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		lp.send = send
		for _, body := range [][]byte{sysexProgrammerMode, sysexFullBrightness} {
			if err := send(gomidi.SysEx(body)); err != nil {
				return nil, fmt.Errorf("programmer mode: %w", err)
			}
		}
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, lp.receive)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}

	return lp, nil
}

func (lp *LaunchpadController) receive(msg gomidi.Message, timestampms int32) {
	var channel, note, velocity uint8
	if !msg.GetNoteOn(&channel, &note, &velocity) || velocity == 0 {
		return
	}
	if row, col := noteToRowCol(note); row >= 0 {
		select {
		case lp.padChan <- PadEvent{Row: row, Col: col, Velocity: velocity}:
		default:
		}
	}
	select {
	case lp.noteChan <- NoteEvent{Note: note, Velocity: velocity, Channel: channel}:
	default:
	}
}

func (lp *LaunchpadController) ID() string { return lp.id }

func (lp *LaunchpadController) Type() ControllerType { return ControllerLaunchpad }

func (lp *LaunchpadController) PadEvents() <-chan PadEvent { return lp.padChan }

func (lp *LaunchpadController) NoteEvents() <-chan NoteEvent { return lp.noteChan }

// SetLEDBatch sends one NoteOn per update; the grid diffs first
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}

	for _, u := range updates {
		if err := lp.send(gomidi.NoteOn(u.Channel, rowColToNote(u.Row, u.Col), paletteIndex(u.Color))); err != nil {
			return err
		}
	}

	count := atomic.AddUint64(&ledSendCount, uint64(len(updates)))
	if count%100 < uint64(len(updates)) {
		debug.Log("lp-send", "batch count=%d (this batch=%d)", count, len(updates))
	}
	return nil
}

// palette maps Launchpad velocities to their approximate RGB
var palette = []struct {
	velocity uint8
	rgb      [3]uint8
}{
	{0, [3]uint8{0, 0, 0}},
	{5, [3]uint8{255, 0, 0}},
	{9, [3]uint8{255, 100, 0}},
	{13, [3]uint8{255, 200, 0}},
	{21, [3]uint8{0, 255, 0}},
	{37, [3]uint8{0, 200, 200}},
	{43, [3]uint8{40, 60, 120}},
	{45, [3]uint8{0, 100, 255}},
	{49, [3]uint8{150, 0, 200}},
	{119, [3]uint8{255, 255, 255}},
}

// paletteIndex finds the velocity whose color is nearest rgb
func paletteIndex(rgb [3]uint8) uint8 {
	best, bestDist := uint8(0), 1<<30
	for _, p := range palette {
		var dist int
		for i := range rgb {
			d := int(rgb[i]) - int(p.rgb[i])
			dist += d * d
		}
		if dist < bestDist {
			best, bestDist = p.velocity, dist
		}
	}
	return best
}

// Close blanks the pads and stops listening
func (lp *LaunchpadController) Close() error {
	if lp.send != nil {
		updates := make([]LEDUpdate, 0, 64)
		for row := 0; row < 8; row++ {
			for col := 0; col < 8; col++ {
				updates = append(updates, LEDUpdate{Row: row, Col: col})
			}
		}
		lp.SetLEDBatch(updates)
	}
	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	close(lp.padChan)
	close(lp.noteChan)
	return nil
}

// Programmer mode numbers the pads 11-18 on the bottom row up to 81-88
func rowColToNote(row, col int) uint8 {
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row > 7 || col < 0 || col > 7 {
		return -1, -1
	}
	return row, col
}

func isLaunchpad(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "launchpad") && strings.Contains(name, "midi")
}
