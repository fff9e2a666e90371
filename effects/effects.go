// Package effects implements the built-in stereo effects and their registry.
// Every effect satisfies the same per-frame contract so the mixing loop can
// run a track's FX chain without knowing what the effects are.
package effects

import "fmt"

// Effect processes one stereo sample at a time. ProcessFrame is a pure
// function of the effect's internal state plus the input; Reset reinitializes
// the internal filter/envelope memory. Parameters are named floats; setting a
// parameter that affects filter coefficients recomputes them before the next
// ProcessFrame call.
type Effect interface {
	Name() string
	ProcessFrame(l, r float32) (float32, float32)
	Reset()
	SetParameter(name string, value float32) error
	Parameters() map[string]float32
}

// New creates a built-in effect by type name.
func New(typeName string) (Effect, error) {
	switch typeName {
	case "eq":
		return NewEQ(), nil
	case "compressor":
		return NewCompressor(), nil
	case "reverb":
		return NewReverb(), nil
	case "delay":
		return NewDelay(), nil
	case "chorus":
		return NewChorus(), nil
	case "limiter":
		return NewLimiter(), nil
	}
	return nil, fmt.Errorf("unknown effect type: %q", typeName)
}

func errUnknownParam(effect, param string) error {
	return fmt.Errorf("unknown %s parameter: %q", effect, param)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
