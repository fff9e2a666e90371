package engine

import (
	"sync"
	"time"

	"github.com/kaiku-daw/kaiku"
	"github.com/kaiku-daw/kaiku/track"
)

type (
	// Broker carries messages from the audio callback to the control side.
	// Communication is one channel per recipient, and every send from the
	// audio thread is non-blocking: a full channel drops the message instead
	// of stalling the callback. The broker also keeps a sync.Pool of
	// *kaiku.AudioBuffer so the callback can hand rendered audio to monitors
	// without allocating per buffer.
	//
	// CloseAudio has capacity 1 so requesting closure never blocks; a full
	// channel means someone already asked. FinishedAudio is closed, never
	// sent to, once the audio goroutine has cleaned up.
	Broker struct {
		ToControl chan MsgToControl

		CloseAudio    chan struct{}
		FinishedAudio chan struct{}

		bufferPool sync.Pool
	}

	// MsgToControl is the message sent after every processed buffer. The
	// frequently updated fields (position, meters) are inline to avoid
	// allocations; infrequent payloads (Alert, finished recordings) ride in
	// Data as pointer types.
	MsgToControl struct {
		HasPosition     bool
		PlayheadSamples int64
		Playing         bool

		HasMeters bool
		Meters    []TrackMeter

		Data any
	}

	// TrackMeter is one track's peak level for the buffer, in dB.
	TrackMeter struct {
		Track track.ID
		Peak  float32
	}

	// Alert is a diagnostic raised by the audio side, surfaced to the
	// control side instead of logged from the callback.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
	}

	AlertPriority int
)

const (
	AlertInfo AlertPriority = iota
	AlertWarning
	AlertError
)

func NewBroker() *Broker {
	return &Broker{
		ToControl:     make(chan MsgToControl, 1024),
		CloseAudio:    make(chan struct{}, 1),
		FinishedAudio: make(chan struct{}),
		bufferPool:    sync.Pool{New: func() any { return &kaiku.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an empty audio buffer from the pool. Return it with
// PutAudioBuffer when done.
func (b *Broker) GetAudioBuffer() *kaiku.AudioBuffer {
	return b.bufferPool.Get().(*kaiku.AudioBuffer)
}

// PutAudioBuffer resets the buffer's length, keeping capacity, and returns it
// to the pool.
func (b *Broker) PutAudioBuffer(buf *kaiku.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend sends v to c if there is room, never blocking. Reports whether the
// value was sent.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value arrives or the timeout elapses; ok is
// false on timeout or when the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
