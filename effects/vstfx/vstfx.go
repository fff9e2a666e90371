// Package vstfx hosts native VST2 plugins behind the same per-frame contract
// as the built-in effects. Plugins process whole blocks, so the wrapper
// accumulates frames and flushes a block through the plugin once the internal
// buffer fills, trading one block of latency for a stable native call rate.
package vstfx

import (
	"fmt"
	"sync"
	"unsafe"

	"pipelined.dev/audio/vst2"
	"pipelined.dev/signal"

	"github.com/kaiku-daw/kaiku"
)

const blockSize = 256

// Plugin wraps a loaded VST2 effect. It is not safe for concurrent use; the
// owning effects.Handle serializes access.
type Plugin struct {
	name   string
	vst    *vst2.VST
	plugin *vst2.Plugin

	in, out  vst2.FloatBuffer
	pos      int
	pending  []vst2.MIDIEvent
	faulted  bool
	faultErr error
}

var loadMu sync.Mutex

// Load opens the plugin library at path and prepares it for processing at the
// engine rate. Loading is serialized because VST2 entry points are not
// reentrant in many plugins.
func Load(path string) (p *Plugin, err error) {
	loadMu.Lock()
	defer loadMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("loading plugin %s: %v", path, r)
		}
	}()
	vst, err := vst2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading plugin %s: %w", path, err)
	}
	host := vst2.Host{
		GetSampleRate: func() signal.Frequency { return kaiku.SampleRate },
		GetBufferSize: func() int { return blockSize },
	}
	plugin := vst.Plugin(host.Callback())
	if plugin == nil {
		vst.Close()
		return nil, fmt.Errorf("loading plugin %s: no entry point", path)
	}
	plugin.SetSampleRate(kaiku.SampleRate)
	plugin.SetBufferSize(blockSize)
	plugin.Start()
	plugin.Resume()
	return &Plugin{
		name:   vst.Name,
		vst:    vst,
		plugin: plugin,
		in:     vst2.NewFloatBuffer(kaiku.NumChannels, blockSize),
		out:    vst2.NewFloatBuffer(kaiku.NumChannels, blockSize),
	}, nil
}

func (p *Plugin) Name() string { return p.name }

// Faulted reports whether a plugin call panicked. A faulted plugin passes
// audio through untouched until it is removed.
func (p *Plugin) Faulted() (bool, error) { return p.faulted, p.faultErr }

func (p *Plugin) fault(r any) {
	p.faulted = true
	p.faultErr = fmt.Errorf("plugin %s: %v", p.name, r)
}

// ProcessFrame feeds one stereo frame into the block buffer and returns the
// frame processed one block earlier. The out buffer starts zeroed, so the
// first block of output is silence.
func (p *Plugin) ProcessFrame(l, r float32) (float32, float32) {
	if p.faulted {
		return l, r
	}
	outL := p.out.Channel(0)[p.pos]
	outR := p.out.Channel(1)[p.pos]
	p.in.Channel(0)[p.pos] = l
	p.in.Channel(1)[p.pos] = r
	p.pos++
	if p.pos == blockSize {
		p.flush()
		p.pos = 0
	}
	return outL, outR
}

func (p *Plugin) flush() {
	defer func() {
		if r := recover(); r != nil {
			p.fault(r)
		}
	}()
	if len(p.pending) > 0 {
		events := make([]vst2.Event, len(p.pending))
		for i := range p.pending {
			events[i] = &p.pending[i]
		}
		ptr := vst2.Events(events...)
		p.plugin.Dispatch(vst2.PlugProcessEvents, 0, 0, unsafe.Pointer(ptr), 0)
		ptr.Free()
		p.pending = p.pending[:0]
	}
	p.plugin.ProcessFloat(p.in, p.out)
}

// ProcessMIDI queues a note event for the next block, letting instrument
// style plugins sit in an FX chain.
func (p *Plugin) ProcessMIDI(on bool, note, velocity byte) {
	status := byte(0x80)
	if on {
		status = 0x90
	}
	p.pending = append(p.pending, vst2.MIDIEvent{
		DeltaFrames: int32(p.pos),
		Data:        [3]byte{status, note, velocity},
	})
}

func (p *Plugin) Reset() {
	if p.faulted {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.fault(r)
		}
	}()
	p.plugin.Suspend()
	p.plugin.Resume()
	for i := 0; i < blockSize; i++ {
		p.in.Channel(0)[i] = 0
		p.in.Channel(1)[i] = 0
		p.out.Channel(0)[i] = 0
		p.out.Channel(1)[i] = 0
	}
	p.pos = 0
	p.pending = p.pending[:0]
}

// SetParameter addresses plugin parameters by decimal index, since VST2
// parameter names are display strings, not identifiers.
func (p *Plugin) SetParameter(name string, value float32) error {
	if p.faulted {
		return p.faultErr
	}
	var idx int
	if _, err := fmt.Sscanf(name, "%d", &idx); err != nil {
		return fmt.Errorf("plugin parameter must be an index, got %q", name)
	}
	return p.SetParameterIndex(idx, value)
}

func (p *Plugin) SetParameterIndex(idx int, value float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.fault(r)
			err = p.faultErr
		}
	}()
	if idx < 0 || idx >= p.plugin.NumParams() {
		return fmt.Errorf("plugin %s has no parameter %d", p.name, idx)
	}
	p.plugin.SetParamValue(idx, value)
	return nil
}

func (p *Plugin) ParameterIndex(idx int) (float32, error) {
	if idx < 0 || idx >= p.plugin.NumParams() {
		return 0, fmt.Errorf("plugin %s has no parameter %d", p.name, idx)
	}
	return p.plugin.ParamValue(idx), nil
}

func (p *Plugin) Parameters() map[string]float32 {
	if p.faulted {
		return nil
	}
	n := p.plugin.NumParams()
	ret := make(map[string]float32, n)
	for i := 0; i < n; i++ {
		ret[fmt.Sprintf("%d", i)] = p.plugin.ParamValue(i)
	}
	return ret
}

// State returns the plugin's opaque program chunk for host persistence.
func (p *Plugin) State() []byte {
	if p.faulted {
		return nil
	}
	return p.plugin.GetProgramData()
}

func (p *Plugin) SetState(data []byte) {
	if p.faulted || len(data) == 0 {
		return
	}
	p.plugin.SetProgramData(data)
}

func (p *Plugin) Close() {
	loadMu.Lock()
	defer loadMu.Unlock()
	defer func() { recover() }()
	p.plugin.Suspend()
	p.plugin.Close()
	p.in.Free()
	p.out.Free()
	p.vst.Close()
}
