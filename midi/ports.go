package midi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// ErrPortsTimeout is returned when the MIDI driver does not answer.
// CoreMIDI can hang; the fix is `sudo killall coreaudiod midiserver`.
var ErrPortsTimeout = errors.New("midi port scan timed out")

// ErrNoPort is returned when no output port matches
var ErrNoPort = errors.New("no matching midi port")

// ScanTimeout bounds every port scan
const ScanTimeout = 3 * time.Second

// Ports is one scan of the driver's ports
type Ports struct {
	Ins  []drivers.In
	Outs []drivers.Out
}

// InNames returns the input port names
func (p Ports) InNames() []string {
	names := make([]string, len(p.Ins))
	for i, in := range p.Ins {
		names[i] = in.String()
	}
	return names
}

// OutNames returns the output port names
func (p Ports) OutNames() []string {
	names := make([]string, len(p.Outs))
	for i, out := range p.Outs {
		names[i] = out.String()
	}
	return names
}

// Scan lists ports, giving up after timeout
func Scan(timeout time.Duration) (Ports, error) {
	ch := make(chan Ports, 1)
	go func() {
		ch <- Ports{Ins: gomidi.GetInPorts(), Outs: gomidi.GetOutPorts()}
	}()

	select {
	case p := <-ch:
		return p, nil
	case <-time.After(timeout):
		return Ports{}, ErrPortsTimeout
	}
}

// matchOut finds an output by exact name, then by case-insensitive
// substring. An empty name picks the first port.
func matchOut(outs []drivers.Out, name string) (drivers.Out, bool) {
	if len(outs) == 0 {
		return nil, false
	}
	if name == "" {
		return outs[0], true
	}
	for _, out := range outs {
		if out.String() == name {
			return out, true
		}
	}
	lower := strings.ToLower(name)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out, true
		}
	}
	return nil, false
}

// OpenOutput opens the named output port for sending
func OpenOutput(name string) (Sender, error) {
	ports, err := Scan(ScanTimeout)
	if err != nil {
		return nil, err
	}
	out, ok := matchOut(ports.Outs, name)
	if !ok {
		return nil, fmt.Errorf("open output %q: %w", name, ErrNoPort)
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", out.String(), err)
	}
	return Sender(send), nil
}

// CloseDriver releases the MIDI driver
func CloseDriver() {
	gomidi.CloseDriver()
}
