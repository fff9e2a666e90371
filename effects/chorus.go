package effects

import (
	"math"

	"github.com/kaiku-daw/kaiku"
)

// Chorus is a sine-modulated delay line read at a fractional position, with
// the right channel's LFO a quarter cycle ahead for stereo movement.
type Chorus struct {
	rateHz    float32
	depth     float32 // 0..1, scaled to the modulation depth in samples
	wetDryMix float32

	bufL, bufR []float32
	pos        int
	phase      float64
	phaseInc   float64
}

// 25 ms base delay plus up to 10 ms modulation
const (
	chorusBaseMs  = 25
	chorusDepthMs = 10
)

func NewChorus() *Chorus {
	size := (chorusBaseMs + chorusDepthMs + 2) * kaiku.SampleRate / 1000
	c := &Chorus{
		rateHz:    1,
		depth:     0.5,
		wetDryMix: 0.3,
		bufL:      make([]float32, size),
		bufR:      make([]float32, size),
	}
	c.updateCoefficients()
	return c
}

func (c *Chorus) Name() string { return "chorus" }

func (c *Chorus) updateCoefficients() {
	c.phaseInc = 2 * math.Pi * float64(c.rateHz) / kaiku.SampleRate
}

func (c *Chorus) ProcessFrame(l, r float32) (float32, float32) {
	c.bufL[c.pos] = l
	c.bufR[c.pos] = r

	depthSamples := float64(c.depth) * chorusDepthMs * kaiku.SampleRate / 1000
	base := float64(chorusBaseMs * kaiku.SampleRate / 1000)
	delayL := base + math.Sin(c.phase)*depthSamples
	delayR := base + math.Sin(c.phase+math.Pi/2)*depthSamples

	wetL := c.readFractional(c.bufL, delayL)
	wetR := c.readFractional(c.bufR, delayR)

	c.phase += c.phaseInc
	if c.phase > 2*math.Pi {
		c.phase -= 2 * math.Pi
	}
	c.pos++
	if c.pos >= len(c.bufL) {
		c.pos = 0
	}
	wet := c.wetDryMix
	return l*(1-wet) + wetL*wet, r*(1-wet) + wetR*wet
}

// readFractional reads the buffer delay samples behind the write position
// with linear interpolation.
func (c *Chorus) readFractional(buf []float32, delay float64) float32 {
	readPos := float64(c.pos) - delay
	for readPos < 0 {
		readPos += float64(len(buf))
	}
	idx := int(readPos)
	frac := float32(readPos - float64(idx))
	idx2 := idx + 1
	if idx2 >= len(buf) {
		idx2 = 0
	}
	return buf[idx]*(1-frac) + buf[idx2]*frac
}

func (c *Chorus) Reset() {
	for i := range c.bufL {
		c.bufL[i] = 0
		c.bufR[i] = 0
	}
	c.pos = 0
	c.phase = 0
}

func (c *Chorus) SetParameter(name string, value float32) error {
	switch name {
	case "rate":
		c.rateHz = clamp(value, 0.05, 10)
	case "depth":
		c.depth = clamp(value, 0, 1)
	case "wet_dry":
		c.wetDryMix = clamp(value, 0, 1)
	default:
		return errUnknownParam("chorus", name)
	}
	c.updateCoefficients()
	return nil
}

func (c *Chorus) Parameters() map[string]float32 {
	return map[string]float32{
		"rate":    c.rateHz,
		"depth":   c.depth,
		"wet_dry": c.wetDryMix,
	}
}
