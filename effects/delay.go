package effects

import "github.com/kaiku-daw/kaiku"

const maxDelayMs = 2000

// Delay is a stereo delay line with feedback. Changing the delay time moves
// the read position within a fixed-size buffer, so no reallocation happens on
// a parameter change.
type Delay struct {
	delayTimeMs float32
	feedback    float32
	wetDryMix   float32

	bufL, bufR   []float32
	pos          int
	delaySamples int
}

func NewDelay() *Delay {
	size := maxDelayMs * kaiku.SampleRate / 1000
	d := &Delay{
		delayTimeMs: 500,
		feedback:    0.3,
		wetDryMix:   0.3,
		bufL:        make([]float32, size),
		bufR:        make([]float32, size),
	}
	d.updateCoefficients()
	return d
}

func (d *Delay) Name() string { return "delay" }

func (d *Delay) updateCoefficients() {
	d.delaySamples = int(float64(d.delayTimeMs) / 1000 * kaiku.SampleRate)
	if d.delaySamples < 1 {
		d.delaySamples = 1
	}
	if d.delaySamples >= len(d.bufL) {
		d.delaySamples = len(d.bufL) - 1
	}
}

func (d *Delay) ProcessFrame(l, r float32) (float32, float32) {
	readPos := d.pos - d.delaySamples
	if readPos < 0 {
		readPos += len(d.bufL)
	}
	delL := d.bufL[readPos]
	delR := d.bufR[readPos]
	d.bufL[d.pos] = l + delL*d.feedback
	d.bufR[d.pos] = r + delR*d.feedback
	d.pos++
	if d.pos >= len(d.bufL) {
		d.pos = 0
	}
	wet := d.wetDryMix
	return l*(1-wet) + delL*wet, r*(1-wet) + delR*wet
}

func (d *Delay) Reset() {
	for i := range d.bufL {
		d.bufL[i] = 0
		d.bufR[i] = 0
	}
	d.pos = 0
}

func (d *Delay) SetParameter(name string, value float32) error {
	switch name {
	case "time":
		d.delayTimeMs = clamp(value, 1, maxDelayMs)
	case "feedback":
		d.feedback = clamp(value, 0, 0.95)
	case "wet_dry":
		d.wetDryMix = clamp(value, 0, 1)
	default:
		return errUnknownParam("delay", name)
	}
	d.updateCoefficients()
	return nil
}

func (d *Delay) Parameters() map[string]float32 {
	return map[string]float32{
		"time":     d.delayTimeMs,
		"feedback": d.feedback,
		"wet_dry":  d.wetDryMix,
	}
}
