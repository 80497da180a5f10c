package vad

import (
	"github.com/magi-shell/ears/internal/audio"
)

// Decision is the result of classifying one audio frame.
type Decision struct {
	// Voiced is the raw per-frame verdict, before any debouncing. The
	// endpoint detector counts consecutive non-voiced frames from it.
	Voiced bool

	// Speech is the debounced verdict that drives state transitions. In
	// heuristic mode it is a majority vote over recent frames; in neural
	// mode it equals Voiced.
	Speech bool

	// Calibrating is true while the classifier is still measuring ambient
	// noise; such frames are never speech.
	Calibrating bool

	// Confidence signals. Energy and ZCR are set by the heuristic
	// classifier, Probability by the neural one.
	Energy      float64
	ZCR         float64
	Probability float32
}

// Classifier turns one fixed-size frame into a speech/non-speech decision.
type Classifier interface {
	// Classify processes one frame. A frame whose length differs from the
	// configured chunk size is an error; callers log and skip it.
	Classify(frame audio.Frame) (Decision, error)

	// Reset restores the post-calibration idle state between utterances.
	// Calibration results survive a reset.
	Reset()
}
