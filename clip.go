package kaiku

type (
	// Clip is an immutable buffer of decoded audio. The sample data is never
	// mutated after construction, so a Clip can be shared freely between the
	// control thread and the audio thread, and the same Clip can be placed on
	// the timeline multiple times.
	Clip struct {
		samples    []float32 // interleaved
		channels   int
		sampleRate int
		duration   float64 // seconds
		path       string  // origin file, "" for recorded/generated clips
	}

	// TimelineClip is a Clip placed on a track's timeline. Duration <= 0 means
	// the clip plays for its natural length. Offset trims the start of the
	// clip, in seconds.
	TimelineClip struct {
		ID        uint64
		Clip      *Clip
		StartTime float64
		Offset    float64
		Duration  float64
	}

	// TimelineMIDIClip is a MIDIClip placed on a track's timeline. The Clip
	// pointer is replaced wholesale on every edit (see MIDIClip), so readers
	// only ever observe complete event lists.
	TimelineMIDIClip struct {
		ID        uint64
		Clip      *MIDIClip
		StartTime float64
	}
)

// NewClip wraps decoded interleaved samples into an immutable clip. The
// sample slice is owned by the clip after the call.
func NewClip(samples []float32, channels, sampleRate int, path string) *Clip {
	frames := 0
	if channels > 0 {
		frames = len(samples) / channels
	}
	return &Clip{
		samples:    samples,
		channels:   channels,
		sampleRate: sampleRate,
		duration:   float64(frames) / float64(sampleRate),
		path:       path,
	}
}

func (c *Clip) Channels() int      { return c.channels }
func (c *Clip) SampleRate() int    { return c.sampleRate }
func (c *Clip) Duration() float64  { return c.duration }
func (c *Clip) Path() string       { return c.path }
func (c *Clip) Frames() int        { return len(c.samples) / c.channels }
func (c *Clip) Samples() []float32 { return c.samples }

// Sample returns the sample at the given frame and channel, or ok = false if
// the frame is outside the clip.
func (c *Clip) Sample(frame, channel int) (v float32, ok bool) {
	idx := frame*c.channels + channel
	if frame < 0 || channel >= c.channels || idx >= len(c.samples) {
		return 0, false
	}
	return c.samples[idx], true
}

// End returns the timeline position where the placed clip stops sounding.
func (t *TimelineClip) End() float64 {
	d := t.Duration
	if d <= 0 {
		d = t.Clip.Duration()
	}
	return t.StartTime + d
}

// ActiveAt reports whether the placed clip sounds at the given timeline
// position.
func (t *TimelineClip) ActiveAt(seconds float64) bool {
	return seconds >= t.StartTime && seconds < t.End()
}

// FrameAt maps a timeline position to a frame index within the clip,
// accounting for the placement's start time and trim offset.
func (t *TimelineClip) FrameAt(seconds float64) int {
	return int((seconds - t.StartTime + t.Offset) * float64(t.Clip.SampleRate()))
}
