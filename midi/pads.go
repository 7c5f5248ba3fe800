package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PadController is any note-sending input (drum pads, keyboards). It is
// used to tap rhythms instead of clapping.
type PadController struct {
	id       string
	stopFunc func()

	padChan  chan PadEvent
	noteChan chan NoteEvent
}

// NewPadController listens on inPort (input only)
func NewPadController(id string, inPort drivers.In) (*PadController, error) {
	pc := &PadController{
		id:       id,
		padChan:  make(chan PadEvent),
		noteChan: make(chan NoteEvent, 32),
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			var channel, note, velocity uint8
			if msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0 {
				select {
				case pc.noteChan <- NoteEvent{Note: note, Velocity: velocity, Channel: channel}:
				default:
				}
			}
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		pc.stopFunc = stop
	}

	return pc, nil
}

func (pc *PadController) ID() string { return pc.id }

func (pc *PadController) Type() ControllerType { return ControllerPads }

// PadEvents never delivers: pads have no grid
func (pc *PadController) PadEvents() <-chan PadEvent { return pc.padChan }

func (pc *PadController) NoteEvents() <-chan NoteEvent { return pc.noteChan }

// SetLEDBatch is a no-op, pads have no feedback
func (pc *PadController) SetLEDBatch(updates []LEDUpdate) error { return nil }

func (pc *PadController) Close() error {
	if pc.stopFunc != nil {
		pc.stopFunc()
	}
	close(pc.padChan)
	close(pc.noteChan)
	return nil
}
