package effects

import (
	"math"

	"github.com/kaiku-daw/kaiku"
)

// biquad is a direct form 1 second-order IIR section with cookbook
// coefficients (Audio EQ Cookbook, R. Bristow-Johnson). One biquad filters
// one channel; stereo bands keep a pair.
type biquad struct {
	b0, b1, b2, a1, a2 float32
	x1, x2, y1, y2     float32
}

func (f *biquad) process(in float32) float32 {
	out := f.b0*in + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, in
	f.y2, f.y1 = f.y1, out
	return out
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

func (f *biquad) setCoeffs(b0, b1, b2, a0, a1, a2 float64) {
	f.b0 = float32(b0 / a0)
	f.b1 = float32(b1 / a0)
	f.b2 = float32(b2 / a0)
	f.a1 = float32(a1 / a0)
	f.a2 = float32(a2 / a0)
}

func (f *biquad) lowShelf(freq, gainDB float64) {
	a := math.Pow(10, gainDB/40)
	omega := 2 * math.Pi * freq / kaiku.SampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	beta := math.Sqrt(a) / 0.7071 * sn // S = 1

	f.setCoeffs(
		a*((a+1)-(a-1)*cs+beta),
		2*a*((a-1)-(a+1)*cs),
		a*((a+1)-(a-1)*cs-beta),
		(a+1)+(a-1)*cs+beta,
		-2*((a-1)+(a+1)*cs),
		(a+1)+(a-1)*cs-beta,
	)
}

func (f *biquad) highShelf(freq, gainDB float64) {
	a := math.Pow(10, gainDB/40)
	omega := 2 * math.Pi * freq / kaiku.SampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	beta := math.Sqrt(a) / 0.7071 * sn

	f.setCoeffs(
		a*((a+1)+(a-1)*cs+beta),
		-2*a*((a-1)+(a+1)*cs),
		a*((a+1)+(a-1)*cs-beta),
		(a+1)-(a-1)*cs+beta,
		2*((a-1)-(a+1)*cs),
		(a+1)-(a-1)*cs-beta,
	)
}

func (f *biquad) peaking(freq, gainDB, q float64) {
	a := math.Pow(10, gainDB/40)
	omega := 2 * math.Pi * freq / kaiku.SampleRate
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)

	f.setCoeffs(
		1+alpha*a,
		-2*cs,
		1-alpha*a,
		1+alpha/a,
		-2*cs,
		1-alpha/a,
	)
}
