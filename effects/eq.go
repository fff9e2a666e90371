package effects

// EQ is a four-band parametric equalizer: low shelf, two peaking mids and a
// high shelf. Setting any parameter recomputes the affected coefficients
// immediately so the next ProcessFrame runs with fresh filters.
type EQ struct {
	lowFreq, lowGainDB    float32
	mid1Freq, mid1GainDB  float32
	mid1Q                 float32
	mid2Freq, mid2GainDB  float32
	mid2Q                 float32
	highFreq, highGainDB  float32
	low, mid1, mid2, high [2]biquad
}

func NewEQ() *EQ {
	eq := &EQ{
		lowFreq:  100,
		mid1Freq: 500,
		mid1Q:    1,
		mid2Freq: 2000,
		mid2Q:    1,
		highFreq: 8000,
	}
	eq.updateCoefficients()
	return eq
}

func (eq *EQ) Name() string { return "eq" }

func (eq *EQ) updateCoefficients() {
	for ch := 0; ch < 2; ch++ {
		eq.low[ch].lowShelf(float64(eq.lowFreq), float64(eq.lowGainDB))
		eq.mid1[ch].peaking(float64(eq.mid1Freq), float64(eq.mid1GainDB), float64(eq.mid1Q))
		eq.mid2[ch].peaking(float64(eq.mid2Freq), float64(eq.mid2GainDB), float64(eq.mid2Q))
		eq.high[ch].highShelf(float64(eq.highFreq), float64(eq.highGainDB))
	}
}

func (eq *EQ) ProcessFrame(l, r float32) (float32, float32) {
	l = eq.high[0].process(eq.mid2[0].process(eq.mid1[0].process(eq.low[0].process(l))))
	r = eq.high[1].process(eq.mid2[1].process(eq.mid1[1].process(eq.low[1].process(r))))
	return l, r
}

func (eq *EQ) Reset() {
	for ch := 0; ch < 2; ch++ {
		eq.low[ch].reset()
		eq.mid1[ch].reset()
		eq.mid2[ch].reset()
		eq.high[ch].reset()
	}
}

func (eq *EQ) SetParameter(name string, value float32) error {
	switch name {
	case "low_freq":
		eq.lowFreq = clamp(value, 20, 1000)
	case "low_gain":
		eq.lowGainDB = clamp(value, -24, 24)
	case "mid1_freq":
		eq.mid1Freq = clamp(value, 100, 8000)
	case "mid1_gain":
		eq.mid1GainDB = clamp(value, -24, 24)
	case "mid1_q":
		eq.mid1Q = clamp(value, 0.1, 10)
	case "mid2_freq":
		eq.mid2Freq = clamp(value, 100, 12000)
	case "mid2_gain":
		eq.mid2GainDB = clamp(value, -24, 24)
	case "mid2_q":
		eq.mid2Q = clamp(value, 0.1, 10)
	case "high_freq":
		eq.highFreq = clamp(value, 1000, 20000)
	case "high_gain":
		eq.highGainDB = clamp(value, -24, 24)
	default:
		return errUnknownParam("eq", name)
	}
	eq.updateCoefficients()
	return nil
}

func (eq *EQ) Parameters() map[string]float32 {
	return map[string]float32{
		"low_freq": eq.lowFreq, "low_gain": eq.lowGainDB,
		"mid1_freq": eq.mid1Freq, "mid1_gain": eq.mid1GainDB, "mid1_q": eq.mid1Q,
		"mid2_freq": eq.mid2Freq, "mid2_gain": eq.mid2GainDB, "mid2_q": eq.mid2Q,
		"high_freq": eq.highFreq, "high_gain": eq.highGainDB,
	}
}
