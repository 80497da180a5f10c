package endpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/magi-shell/ears/internal/audio"
	"github.com/magi-shell/ears/internal/metrics"
	"github.com/magi-shell/ears/internal/vad"
)

// State is the detector phase. One capture session owns one detector; the
// state resets to waiting after every dispatched or discarded utterance.
type State int

const (
	StateWaiting State = iota // no speech, filling the pre-roll ring
	StateListening            // utterance in progress
	StateProcessing           // utterance handed off for transcription
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config contains endpoint detection parameters.
type Config struct {
	ChunkSize            int
	SampleRate           int
	SilenceLimit         time.Duration // trailing silence ending an utterance
	PreRoll              time.Duration // audio retained before speech onset
	MinSilenceDetections int           // consecutive raw-silence frames required
	MinUtteranceDuration time.Duration // shorter utterances are discarded

	Metrics *metrics.Metrics // optional
}

// Detector tracks consecutive silence to decide when an utterance has ended.
// Exactly one utterance buffer is live at a time; pre-roll frames move into
// it once at speech onset and are never duplicated.
type Detector struct {
	config Config

	state              State
	preRoll            *audio.PreRollRing
	utterance          *audio.Utterance
	silentFrames       int
	consecutiveSilence int
	utteranceSeq       uint64

	// Statistics
	utterancesDetected  uint64
	utterancesDiscarded uint64

	mu sync.Mutex
}

// Stats reports detector state for monitoring.
type Stats struct {
	State               string `json:"state"`
	UtterancesDetected  uint64 `json:"utterances_detected"`
	UtterancesDiscarded uint64 `json:"utterances_discarded"`
	PreRollFrames       int    `json:"pre_roll_frames"`
	BufferedFrames      int    `json:"buffered_frames"`
}

// NewDetector creates an endpoint detector.
func NewDetector(config Config) (*Detector, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.SilenceLimit <= 0 {
		return nil, fmt.Errorf("silence limit must be positive, got %s", config.SilenceLimit)
	}

	if config.MinSilenceDetections < 1 {
		return nil, fmt.Errorf("min silence detections must be at least 1, got %d", config.MinSilenceDetections)
	}

	preRollFrames := int(config.PreRoll.Seconds() * float64(config.SampleRate) / float64(config.ChunkSize))

	return &Detector{
		config:  config,
		state:   StateWaiting,
		preRoll: audio.NewPreRollRing(preRollFrames),
	}, nil
}

// Process consumes one classified frame and advances the state machine. It
// returns a completed utterance when the endpoint is reached, leaving the
// detector in the processing state; the caller must call Complete after
// dispatch. A nil return means no endpoint yet.
func (d *Detector) Process(frame audio.Frame, decision vad.Decision) *audio.Utterance {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Raw silence while an utterance is in progress feeds the debounce
	// counter; anything else resets it.
	if !decision.Voiced && d.state == StateListening {
		d.consecutiveSilence++
	} else {
		d.consecutiveSilence = 0
	}

	switch d.state {
	case StateWaiting:
		if decision.Speech {
			d.beginUtterance(frame)
			return nil
		}
		d.preRoll.Push(frame)

	case StateListening:
		if decision.Speech {
			d.utterance.Append(frame)
			d.silentFrames = 0
			return nil
		}

		// Trailing silence may hold coarticulation, keep it in the buffer.
		d.silentFrames++
		d.utterance.Append(frame)

		silence := time.Duration(float64(d.silentFrames*d.config.ChunkSize) /
			float64(d.config.SampleRate) * float64(time.Second))

		if silence >= d.config.SilenceLimit && d.consecutiveSilence >= d.config.MinSilenceDetections {
			return d.endUtterance()
		}

	case StateProcessing:
		// Frames arriving while a dispatch is in flight are dropped; the
		// pipeline dispatches synchronously so this window is one frame wide
		// at most.
	}

	return nil
}

// Complete returns the detector to the waiting state after dispatch. The
// transition is unconditional: a failed dispatch also ends the utterance.
func (d *Detector) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reset()
}

// State returns the current detector state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// GetStats returns current detector statistics.
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	buffered := 0
	if d.utterance != nil {
		buffered = d.utterance.FrameCount()
	}

	return Stats{
		State:               d.state.String(),
		UtterancesDetected:  d.utterancesDetected,
		UtterancesDiscarded: d.utterancesDiscarded,
		PreRollFrames:       d.preRoll.Len(),
		BufferedFrames:      buffered,
	}
}

// beginUtterance moves the pre-roll into a fresh buffer and starts listening.
func (d *Detector) beginUtterance(frame audio.Frame) {
	d.utteranceSeq++
	d.utterance = audio.NewUtterance(
		fmt.Sprintf("utt_%d_%d", time.Now().Unix(), d.utteranceSeq),
		d.config.SampleRate,
		time.Now(),
	)
	d.utterance.AppendAll(d.preRoll.Drain())
	d.utterance.Append(frame)
	d.silentFrames = 0
	d.state = StateListening
}

// endUtterance finishes the current buffer. Too-short utterances are treated
// as noise and discarded without entering the processing state.
func (d *Detector) endUtterance() *audio.Utterance {
	u := d.utterance

	if u.Duration() < d.config.MinUtteranceDuration {
		d.utterancesDiscarded++
		if d.config.Metrics != nil {
			d.config.Metrics.RecordUtteranceDiscarded()
		}
		d.reset()
		return nil
	}

	d.utterancesDetected++
	d.utterance = nil
	d.state = StateProcessing
	return u
}

// reset clears all per-utterance state.
func (d *Detector) reset() {
	d.state = StateWaiting
	d.utterance = nil
	d.preRoll.Reset()
	d.silentFrames = 0
	d.consecutiveSilence = 0
}
