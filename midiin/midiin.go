// Package midiin provides live MIDI note input via rtmidi. Incoming note
// messages are delivered to a handler function from the driver goroutine;
// the handler forwards them to the engine, which deals with thread safety.
package midiin

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/kaiku-daw/kaiku"
)

type (
	// NoteHandler receives live note events. It is called from the MIDI
	// driver goroutine.
	NoteHandler func(on bool, note, velocity byte)

	// RTMIDIContext implements kaiku.MIDIContext on top of rtmidi. At most
	// one input device is open at a time.
	RTMIDIContext struct {
		driver             *rtmididrv.Driver
		currentIn          drivers.In
		inputDevices       []RTMIDIDevice
		devicesInitialized bool
		handler            NoteHandler
	}

	RTMIDIDevice struct {
		context *RTMIDIContext
		in      drivers.In
	}
)

// NewContext opens the rtmidi driver. A nil driver (e.g. no MIDI subsystem
// on the host) is tolerated: the context just yields no devices.
func NewContext(handler NoteHandler) *RTMIDIContext {
	m := &RTMIDIContext{handler: handler}
	m.driver, _ = rtmididrv.New()
	return m
}

func (m *RTMIDIContext) InputDevices(yield func(kaiku.MIDIDevice) bool) {
	if m.devicesInitialized {
		m.yieldCachedInputDevices(yield)
	} else {
		m.initInputDevices(yield)
	}
}

func (m *RTMIDIContext) yieldCachedInputDevices(yield func(kaiku.MIDIDevice) bool) {
	for _, device := range m.inputDevices {
		if !yield(device) {
			break
		}
	}
}

func (m *RTMIDIContext) initInputDevices(yield func(kaiku.MIDIDevice) bool) {
	if m.driver == nil {
		return
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return
	}
	for i := 0; i < len(ins); i++ {
		device := RTMIDIDevice{context: m, in: ins[i]}
		m.inputDevices = append(m.inputDevices, device)
		if !yield(device) {
			break
		}
	}
	m.devicesInitialized = true
}

// Open the input device, closing the currently open one if necessary.
func (d RTMIDIDevice) Open() error {
	if d.context.currentIn == d.in {
		return nil
	}
	if d.context.driver == nil {
		return errors.New("no driver available")
	}
	if d.context.HasDeviceOpen() {
		d.context.currentIn.Close()
	}
	d.context.currentIn = d.in
	if err := d.in.Open(); err != nil {
		d.context.currentIn = nil
		return fmt.Errorf("opening MIDI input failed: %w", err)
	}
	if _, err := midi.ListenTo(d.in, d.context.handleMessage); err != nil {
		d.in.Close()
		d.context.currentIn = nil
		return fmt.Errorf("listening to MIDI input failed: %w", err)
	}
	return nil
}

func (d RTMIDIDevice) String() string {
	return d.in.String()
}

func (m *RTMIDIContext) HasDeviceOpen() bool {
	return m.currentIn != nil && m.currentIn.IsOpen()
}

func (m *RTMIDIContext) Close() {
	if m.driver == nil {
		return
	}
	if m.currentIn != nil && m.currentIn.IsOpen() {
		m.currentIn.Close()
	}
	m.driver.Close()
}

func (m *RTMIDIContext) handleMessage(msg midi.Message, timestampms int32) {
	if m.handler == nil {
		return
	}
	var channel, key, velocity uint8
	if msg.GetNoteOn(&channel, &key, &velocity) {
		// some devices send note on with zero velocity instead of note off
		m.handler(velocity > 0, key, velocity)
	} else if msg.GetNoteOff(&channel, &key, &velocity) {
		m.handler(false, key, velocity)
	}
}
