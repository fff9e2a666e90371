// Package oto implements the audio device collaborator on top of oto v3.
// The device pulls: oto calls Read on its own goroutine and the stream
// fills it by invoking the engine callback.
package oto

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/kaiku-daw/kaiku"
)

type (
	OtoContext struct {
		context *oto.Context
	}

	OtoStream struct {
		player   *oto.Player
		callback func(buf kaiku.AudioBuffer)
		buf      kaiku.AudioBuffer

		mu     sync.Mutex
		closed bool
	}
)

// NewContext opens the default output device at the engine rate, stereo
// 32-bit float.
func NewContext() (*OtoContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   kaiku.SampleRate,
		ChannelCount: kaiku.NumChannels,
		Format:       oto.FormatFloat32LE,
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoContext{context: context}, nil
}

func (c *OtoContext) OpenStream(callback func(buf kaiku.AudioBuffer)) (kaiku.OutputStream, error) {
	s := &OtoStream{callback: callback}
	s.player = c.context.NewPlayer(s)
	return s, nil
}

func (c *OtoContext) Close() error {
	// oto contexts cannot be closed; suspending stops the device goroutine
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// Read fills p with float32 little-endian frames from the engine callback.
// Called by oto from its own goroutine.
func (s *OtoStream) Read(p []byte) (int, error) {
	const bytesPerFrame = 4 * kaiku.NumChannels
	numFrames := len(p) / bytesPerFrame
	if numFrames == 0 {
		return 0, nil
	}
	if cap(s.buf) < numFrames {
		s.buf = make(kaiku.AudioBuffer, numFrames)
	}
	s.buf = s.buf[:numFrames]
	for i := range s.buf {
		s.buf[i] = [2]float32{}
	}
	s.callback(s.buf)
	for i, frame := range s.buf {
		binary.LittleEndian.PutUint32(p[i*bytesPerFrame:], math.Float32bits(frame[0]))
		binary.LittleEndian.PutUint32(p[i*bytesPerFrame+4:], math.Float32bits(frame[1]))
	}
	return numFrames * bytesPerFrame, nil
}

func (s *OtoStream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	if !s.player.IsPlaying() {
		s.player.Play()
	}
	return nil
}

func (s *OtoStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	if s.player.IsPlaying() {
		if err := s.player.Pause(); err != nil {
			return fmt.Errorf("cannot pause player: %w", err)
		}
	}
	return nil
}

func (s *OtoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("cannot close player: %w", err)
	}
	return nil
}
