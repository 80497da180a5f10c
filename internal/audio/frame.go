package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is one fixed-size chunk of mono float32 samples from the capture
// device.
type Frame []float32

// Clone returns an independent copy of the frame. Capture reuses its read
// buffer, so frames must be cloned before crossing the channel.
func (f Frame) Clone() Frame {
	c := make(Frame, len(f))
	copy(c, f)
	return c
}

// PreRollRing is a bounded ring of the most recent non-speech frames,
// retained so the start of an utterance is not lost while speech is being
// confirmed. Oldest frames are discarded as new ones arrive.
type PreRollRing struct {
	frames   []Frame
	capacity int
}

// NewPreRollRing creates a ring holding at most capacity frames.
func NewPreRollRing(capacity int) *PreRollRing {
	if capacity < 0 {
		capacity = 0
	}
	return &PreRollRing{
		frames:   make([]Frame, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, discarding the oldest when the ring is full.
func (r *PreRollRing) Push(frame Frame) {
	if r.capacity == 0 {
		return
	}
	if len(r.frames) == r.capacity {
		copy(r.frames, r.frames[1:])
		r.frames[len(r.frames)-1] = frame
		return
	}
	r.frames = append(r.frames, frame)
}

// Drain returns the buffered frames in arrival order and empties the ring.
func (r *PreRollRing) Drain() []Frame {
	out := r.frames
	r.frames = make([]Frame, 0, r.capacity)
	return out
}

// Reset empties the ring.
func (r *PreRollRing) Reset() {
	r.frames = r.frames[:0]
}

// Len returns the number of buffered frames.
func (r *PreRollRing) Len() int {
	return len(r.frames)
}

// Capacity returns the maximum number of buffered frames.
func (r *PreRollRing) Capacity() int {
	return r.capacity
}

// Utterance accumulates the frames of one candidate utterance, pre-roll
// included, in arrival order.
type Utterance struct {
	ID         string
	StartTime  time.Time
	SampleRate int

	frames  []Frame
	samples int
}

// NewUtterance creates an empty utterance buffer.
func NewUtterance(id string, sampleRate int, start time.Time) *Utterance {
	return &Utterance{
		ID:         id,
		StartTime:  start,
		SampleRate: sampleRate,
	}
}

// Append adds one frame to the end of the utterance.
func (u *Utterance) Append(frame Frame) {
	u.frames = append(u.frames, frame)
	u.samples += len(frame)
}

// AppendAll adds frames in order, used to prepend the drained pre-roll at
// speech onset.
func (u *Utterance) AppendAll(frames []Frame) {
	for _, f := range frames {
		u.Append(f)
	}
}

// FrameCount returns the number of buffered frames.
func (u *Utterance) FrameCount() int {
	return len(u.frames)
}

// SampleCount returns the total number of buffered samples.
func (u *Utterance) SampleCount() int {
	return u.samples
}

// Duration returns the utterance length in time at its sample rate.
func (u *Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(u.samples) / float64(u.SampleRate) * float64(time.Second))
}

// Samples concatenates all frames into one linear sample buffer, preserving
// frame order.
func (u *Utterance) Samples() []float32 {
	out := make([]float32, 0, u.samples)
	for _, f := range u.frames {
		out = append(out, f...)
	}
	return out
}

// PCMBytes encodes the utterance as raw little-endian float32 PCM, the wire
// format the transcription endpoint expects. No WAV header is written.
func (u *Utterance) PCMBytes() []byte {
	out := make([]byte, 0, u.samples*4)
	var scratch [4]byte
	for _, f := range u.frames {
		for _, s := range f {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(s))
			out = append(out, scratch[:]...)
		}
	}
	return out
}
