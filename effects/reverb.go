package effects

// Reverb is a Schroeder-style reverberator: four parallel damped comb
// filters into two series allpass filters, per channel, with slightly
// detuned delay lengths on the right channel for stereo width.
type Reverb struct {
	roomSize  float32
	damping   float32
	wetDryMix float32

	combs   [2][4]dampedComb
	allpass [2][2]allpassFilter
}

type dampedComb struct {
	buf      []float32
	pos      int
	feedback float32
	damp     float32
	filtered float32
}

type allpassFilter struct {
	buf []float32
	pos int
}

// comb delay lengths in samples at 48 kHz, prime-ish to avoid resonances;
// the second index offsets the right channel
var combLens = [4]int{1557, 1617, 1491, 1422}
var allpassLens = [2]int{225, 556}

const stereoSpread = 23

func NewReverb() *Reverb {
	r := &Reverb{roomSize: 0.5, damping: 0.5, wetDryMix: 0.3}
	for ch := 0; ch < 2; ch++ {
		spread := ch * stereoSpread
		for i := range r.combs[ch] {
			r.combs[ch][i].buf = make([]float32, combLens[i]+spread)
		}
		for i := range r.allpass[ch] {
			r.allpass[ch][i].buf = make([]float32, allpassLens[i]+spread)
		}
	}
	r.updateCoefficients()
	return r
}

func (r *Reverb) Name() string { return "reverb" }

func (r *Reverb) updateCoefficients() {
	feedback := 0.7 + 0.28*r.roomSize
	for ch := 0; ch < 2; ch++ {
		for i := range r.combs[ch] {
			r.combs[ch][i].feedback = feedback
			r.combs[ch][i].damp = r.damping * 0.4
		}
	}
}

func (r *Reverb) ProcessFrame(l, rr float32) (float32, float32) {
	input := (l + rr) * 0.5
	var outL, outR float32
	for i := range r.combs[0] {
		outL += r.combs[0][i].process(input)
		outR += r.combs[1][i].process(input)
	}
	outL *= 0.25
	outR *= 0.25
	for i := range r.allpass[0] {
		outL = r.allpass[0][i].process(outL)
		outR = r.allpass[1][i].process(outR)
	}
	wet := r.wetDryMix
	return l*(1-wet) + outL*wet, rr*(1-wet) + outR*wet
}

func (r *Reverb) Reset() {
	for ch := 0; ch < 2; ch++ {
		for i := range r.combs[ch] {
			c := &r.combs[ch][i]
			for j := range c.buf {
				c.buf[j] = 0
			}
			c.pos, c.filtered = 0, 0
		}
		for i := range r.allpass[ch] {
			a := &r.allpass[ch][i]
			for j := range a.buf {
				a.buf[j] = 0
			}
			a.pos = 0
		}
	}
}

func (r *Reverb) SetParameter(name string, value float32) error {
	switch name {
	case "room_size":
		r.roomSize = clamp(value, 0, 1)
	case "damping":
		r.damping = clamp(value, 0, 1)
	case "wet_dry":
		r.wetDryMix = clamp(value, 0, 1)
	default:
		return errUnknownParam("reverb", name)
	}
	r.updateCoefficients()
	return nil
}

func (r *Reverb) Parameters() map[string]float32 {
	return map[string]float32{
		"room_size": r.roomSize,
		"damping":   r.damping,
		"wet_dry":   r.wetDryMix,
	}
}

func (c *dampedComb) process(in float32) float32 {
	out := c.buf[c.pos]
	c.filtered = out*(1-c.damp) + c.filtered*c.damp
	c.buf[c.pos] = in + c.filtered*c.feedback
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpassFilter) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*0.5
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}
