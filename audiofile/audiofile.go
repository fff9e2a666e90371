// Package audiofile loads audio files into engine-rate clips and writes
// rendered audio back out as WAV. Decoded audio is converted to stereo and
// resampled to the engine rate so the mixer never has to deal with foreign
// formats.
package audiofile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/kaiku-daw/kaiku"
)

// Load reads an audio file and returns it as a stereo clip at the engine
// sample rate. The format is chosen by file extension: .wav, .mp3 and .ogg
// are supported.
func Load(path string) (*kaiku.Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var (
		samples  []float32
		channels int
		rate     int
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		samples, channels, rate, err = decodeWAV(f)
	case ".mp3":
		samples, channels, rate, err = decodeMP3(f)
	case ".ogg":
		samples, channels, rate, err = decodeOGG(f)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("decoding %s: no audio data", path)
	}

	samples = toStereo(samples, channels)
	if rate != kaiku.SampleRate {
		samples = resample(samples, rate, kaiku.SampleRate)
	}
	return kaiku.NewClip(samples, kaiku.NumChannels, kaiku.SampleRate, path), nil
}

func decodeWAV(f *os.File) ([]float32, int, int, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("not a valid wav file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, 0, 0, err
	}
	format := dec.Format()
	bitDepth := int(dec.SampleBitDepth())

	pcmLen := dec.PCMLen()
	bytesPerSample := bitDepth / 8
	numSamples := int(pcmLen) / bytesPerSample
	intBuf := &audio.IntBuffer{
		Format: format,
		Data:   make([]int, numSamples),
	}
	n, err := dec.PCMBuffer(intBuf)
	if err != nil {
		return nil, 0, 0, err
	}

	scale := float32(int64(1) << (bitDepth - 1))
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32(intBuf.Data[i]) / scale
	}
	return samples, format.NumChannels, format.SampleRate, nil
}

func decodeMP3(f *os.File) ([]float32, int, int, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, 0, 0, err
	}
	// go-mp3 always outputs stereo 16-bit little-endian PCM
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, err
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		samples[i] = float32(v) / 32768
	}
	return samples, 2, dec.SampleRate(), nil
}

func decodeOGG(f *os.File) ([]float32, int, int, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, 0, 0, err
	}
	channels := dec.Channels()
	var samples []float32
	buf := make([]float32, 4096*channels)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			samples = append(samples, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		if n == 0 {
			break
		}
	}
	return samples, channels, dec.SampleRate(), nil
}

// toStereo converts interleaved samples of any channel count to interleaved
// stereo: mono is duplicated, extra channels are dropped.
func toStereo(samples []float32, channels int) []float32 {
	switch channels {
	case kaiku.NumChannels:
		return samples
	case 1:
		out := make([]float32, len(samples)*2)
		for i, s := range samples {
			out[2*i] = s
			out[2*i+1] = s
		}
		return out
	default:
		frames := len(samples) / channels
		out := make([]float32, frames*2)
		for i := 0; i < frames; i++ {
			out[2*i] = samples[i*channels]
			out[2*i+1] = samples[i*channels+1]
		}
		return out
	}
}

// resample converts interleaved stereo audio between rates with linear
// interpolation, which is adequate for one-time import conversion.
func resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 {
		return samples
	}
	srcFrames := len(samples) / 2
	if srcFrames == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	dstFrames := int(float64(srcFrames) / ratio)
	if dstFrames < 1 {
		dstFrames = 1
	}
	out := make([]float32, dstFrames*2)
	for i := 0; i < dstFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := idx + 1
		if next >= srcFrames {
			next = srcFrames - 1
		}
		for c := 0; c < 2; c++ {
			a := samples[idx*2+c]
			b := samples[next*2+c]
			out[i*2+c] = a + (b-a)*frac
		}
	}
	return out
}

// WriteWAV writes interleaved samples to a WAV file. bitDepth 16 and 24
// write integer PCM; 32 writes IEEE float samples.
func WriteWAV(path string, samples []float32, channels, rate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch bitDepth {
	case 16, 24:
		err = writePCM(f, samples, channels, rate, bitDepth)
	case 32:
		err = writeFloat(f, samples, channels, rate)
	default:
		f.Close()
		os.Remove(path)
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePCM(f *os.File, samples []float32, channels, rate, bitDepth int) error {
	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	max := float32(int64(1)<<(bitDepth-1)) - 1
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * max)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func writeFloat(f *os.File, samples []float32, channels, rate int) error {
	enc := wav.NewEncoder(f, rate, 32, channels, 3)
	for _, s := range samples {
		if err := enc.WriteFrame(s); err != nil {
			return err
		}
	}
	return enc.Close()
}
