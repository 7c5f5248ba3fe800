package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerPads
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerPads:
		return "pads"
	}
	return "unknown"
}

// PadEvent is sent when a pad/button is pressed on a grid controller
type PadEvent struct {
	Row, Col int
	Velocity uint8
}

// NoteEvent is sent when a drum pad or key is hit
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
}

// LEDUpdate is one pad color change
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8
	Channel  uint8
}

// Controller is a MIDI input device: a Launchpad grid for editing the
// pattern or any pad/keyboard used to tap along instead of clapping
type Controller interface {
	ID() string
	Type() ControllerType

	PadEvents() <-chan PadEvent   // grid controllers
	NoteEvents() <-chan NoteEvent // every note-on with velocity > 0

	SetLEDBatch(updates []LEDUpdate) error

	Close() error
}

// Channel modes for LEDUpdate.Channel
const (
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)
