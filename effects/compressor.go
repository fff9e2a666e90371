package effects

import (
	"math"

	"github.com/kaiku-daw/kaiku"
)

// Compressor is a feed-forward dynamic range compressor with a per-channel
// envelope follower. Attack and release are first-order smoothing
// coefficients derived from the millisecond parameters.
type Compressor struct {
	thresholdDB  float32
	ratio        float32
	attackMs     float32
	releaseMs    float32
	makeupGainDB float32

	threshold    float32 // linear
	makeup       float32 // linear
	attackCoeff  float32
	releaseCoeff float32
	envL, envR   float32
}

func NewCompressor() *Compressor {
	c := &Compressor{
		thresholdDB:  -20,
		ratio:        4,
		attackMs:     10,
		releaseMs:    100,
		makeupGainDB: 0,
	}
	c.updateCoefficients()
	return c
}

func (c *Compressor) Name() string { return "compressor" }

func (c *Compressor) updateCoefficients() {
	c.threshold = float32(math.Pow(10, float64(c.thresholdDB)/20))
	c.makeup = float32(math.Pow(10, float64(c.makeupGainDB)/20))
	c.attackCoeff = smoothingCoeff(c.attackMs)
	c.releaseCoeff = smoothingCoeff(c.releaseMs)
}

func smoothingCoeff(ms float32) float32 {
	if ms <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1/(float64(ms)/1000*kaiku.SampleRate)))
}

func (c *Compressor) ProcessFrame(l, r float32) (float32, float32) {
	absL := float32(math.Abs(float64(l)))
	absR := float32(math.Abs(float64(r)))
	if absL > c.envL {
		c.envL += c.attackCoeff * (absL - c.envL)
	} else {
		c.envL += c.releaseCoeff * (absL - c.envL)
	}
	if absR > c.envR {
		c.envR += c.attackCoeff * (absR - c.envR)
	} else {
		c.envR += c.releaseCoeff * (absR - c.envR)
	}
	return l * c.gainFor(c.envL) * c.makeup, r * c.gainFor(c.envR) * c.makeup
}

// gainFor computes the gain reduction for the given envelope level: unity
// below the threshold, and (env/threshold)^(1/ratio-1) above it.
func (c *Compressor) gainFor(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := float64(env / c.threshold)
	return float32(math.Pow(over, float64(1/c.ratio-1)))
}

func (c *Compressor) Reset() {
	c.envL, c.envR = 0, 0
}

func (c *Compressor) SetParameter(name string, value float32) error {
	switch name {
	case "threshold":
		c.thresholdDB = clamp(value, -60, 0)
	case "ratio":
		c.ratio = clamp(value, 1, 20)
	case "attack":
		c.attackMs = clamp(value, 0.1, 500)
	case "release":
		c.releaseMs = clamp(value, 1, 2000)
	case "makeup":
		c.makeupGainDB = clamp(value, 0, 24)
	default:
		return errUnknownParam("compressor", name)
	}
	c.updateCoefficients()
	return nil
}

func (c *Compressor) Parameters() map[string]float32 {
	return map[string]float32{
		"threshold": c.thresholdDB,
		"ratio":     c.ratio,
		"attack":    c.attackMs,
		"release":   c.releaseMs,
		"makeup":    c.makeupGainDB,
	}
}
