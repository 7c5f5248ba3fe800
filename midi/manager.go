package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"clap-trainer/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of MIDI controllers
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
	tapPorts    bool
}

// NewDeviceManager creates a device manager. With tapPorts set, every
// non-Launchpad input is opened as a tap pad.
func NewDeviceManager(tapPorts bool) *DeviceManager {
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		tapPorts:    tapPorts,
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		out[k] = v
	}
	return out
}

// First returns the first connected controller of type t (or nil)
func (dm *DeviceManager) First(t ControllerType) Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == t {
			return c
		}
	}
	return nil
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	ports, err := Scan(ScanTimeout)
	if err != nil {
		// skip this scan, the driver may recover
		debug.LogEvery(10, "midi", "scan: %v", err)
		return
	}

	seenIDs := make(map[string]bool)
	for _, inPort := range ports.Ins {
		id := inPort.String()
		kind := classify(id)
		if kind == ControllerUnknown || (kind == ControllerPads && !dm.tapPorts) {
			continue
		}
		seenIDs[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := dm.open(kind, inPort, ports.Outs)
		if err != nil {
			debug.Log("midi", "open %s: %v", id, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()
		debug.Log("midi", "connected %s (%s)", id, kind)
		dm.events <- DeviceEvent{Type: DeviceConnected, Controller: c, ID: id}
	}

	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seenIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		dm.controllers[id].Close()
		delete(dm.controllers, id)
		debug.Log("midi", "disconnected %s", id)
		dm.events <- DeviceEvent{Type: DeviceDisconnected, ID: id}
	}
	dm.mu.Unlock()
}

func (dm *DeviceManager) open(kind ControllerType, in drivers.In, outs []drivers.Out) (Controller, error) {
	if kind == ControllerLaunchpad {
		// the output with the same name drives the LEDs
		var out drivers.Out
		name := strings.ToLower(in.String())
		for _, op := range outs {
			if strings.ToLower(op.String()) == name {
				out = op
				break
			}
		}
		return NewLaunchpadController(in.String(), in, out)
	}
	return NewPadController(in.String(), in)
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

// classify decides what an input port is used for
func classify(name string) ControllerType {
	lower := strings.ToLower(name)
	switch {
	case isLaunchpad(lower):
		return ControllerLaunchpad
	case strings.Contains(lower, "through"), strings.Contains(lower, "launchpad"):
		// loopback ports and the Launchpad's DAW port
		return ControllerUnknown
	default:
		return ControllerPads
	}
}
