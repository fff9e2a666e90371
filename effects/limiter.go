package effects

import "math"

// Limiter is a hard peak limiter with instant attack and a smoothed release.
// The envelope tracks the absolute peak of both channels so stereo imaging is
// preserved under gain reduction.
type Limiter struct {
	thresholdDB float32
	releaseMs   float32

	threshold    float32 // linear
	releaseCoeff float32
	envelope     float32
}

func NewLimiter() *Limiter {
	l := &Limiter{thresholdDB: -0.3, releaseMs: 50}
	l.updateCoefficients()
	return l
}

func (lm *Limiter) Name() string { return "limiter" }

func (lm *Limiter) updateCoefficients() {
	lm.threshold = float32(math.Pow(10, float64(lm.thresholdDB)/20))
	lm.releaseCoeff = smoothingCoeff(lm.releaseMs)
}

func (lm *Limiter) ProcessFrame(l, r float32) (float32, float32) {
	peak := float32(math.Abs(float64(l)))
	if ar := float32(math.Abs(float64(r))); ar > peak {
		peak = ar
	}
	if peak > lm.envelope {
		lm.envelope = peak
	} else {
		lm.envelope += lm.releaseCoeff * (peak - lm.envelope)
	}
	gain := float32(1)
	if lm.envelope > lm.threshold {
		gain = lm.threshold / lm.envelope
	}
	return l * gain, r * gain
}

func (lm *Limiter) Reset() {
	lm.envelope = 0
}

func (lm *Limiter) SetParameter(name string, value float32) error {
	switch name {
	case "threshold":
		lm.thresholdDB = clamp(value, -24, 0)
	case "release":
		lm.releaseMs = clamp(value, 1, 1000)
	default:
		return errUnknownParam("limiter", name)
	}
	lm.updateCoefficients()
	return nil
}

func (lm *Limiter) Parameters() map[string]float32 {
	return map[string]float32{
		"threshold": lm.thresholdDB,
		"release":   lm.releaseMs,
	}
}
