package endpoint

import (
	"testing"
	"time"

	"github.com/magi-shell/ears/internal/audio"
	"github.com/magi-shell/ears/internal/vad"
)

const (
	testSampleRate = 16000
	testChunkSize  = 1024 // 64ms per frame
)

func testDetectorConfig() Config {
	return Config{
		ChunkSize:            testChunkSize,
		SampleRate:           testSampleRate,
		SilenceLimit:         700 * time.Millisecond,
		PreRoll:              500 * time.Millisecond,
		MinSilenceDetections: 3,
		MinUtteranceDuration: 350 * time.Millisecond,
	}
}

func markedFrame(value float32) audio.Frame {
	f := make(audio.Frame, testChunkSize)
	for i := range f {
		f[i] = value
	}
	return f
}

var (
	speech  = vad.Decision{Voiced: true, Speech: true}
	silence = vad.Decision{Voiced: false, Speech: false}
	// Raw-voiced frame that has not accumulated enough votes yet.
	voicedNotSpeech = vad.Decision{Voiced: true, Speech: false}
)

func TestDetectorValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero silence limit", func(c *Config) { c.SilenceLimit = 0 }},
		{"zero min silence detections", func(c *Config) { c.MinSilenceDetections = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testDetectorConfig()
			tt.mutate(&cfg)
			if _, err := NewDetector(cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := NewDetector(testDetectorConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestDetectorPreRollPrependedOnce(t *testing.T) {
	d, err := NewDetector(testDetectorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 0.5s pre-roll at 64ms frames holds 7 frames; push 10 so the ring wraps.
	for i := 0; i < 10; i++ {
		if u := d.Process(markedFrame(1), silence); u != nil {
			t.Fatal("endpoint reached while waiting")
		}
	}

	if d.State() != StateWaiting {
		t.Fatalf("expected waiting state, got %s", d.State())
	}

	// Speech onset moves the retained pre-roll plus the onset frame into the
	// utterance and empties the ring.
	if u := d.Process(markedFrame(2), speech); u != nil {
		t.Fatal("endpoint reached at speech onset")
	}

	if d.State() != StateListening {
		t.Fatalf("expected listening state, got %s", d.State())
	}

	stats := d.GetStats()
	if stats.BufferedFrames != 8 {
		t.Errorf("expected 7 pre-roll frames + onset frame = 8 buffered, got %d", stats.BufferedFrames)
	}
	if stats.PreRollFrames != 0 {
		t.Errorf("pre-roll ring not emptied at onset, %d frames remain", stats.PreRollFrames)
	}
}

func TestDetectorEndpointAfterSilenceLimit(t *testing.T) {
	d, err := NewDetector(testDetectorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Process(markedFrame(1), silence)
	d.Process(markedFrame(2), speech)

	// 700ms at 64ms frames needs 11 silent frames.
	for i := 0; i < 10; i++ {
		if u := d.Process(markedFrame(3), silence); u != nil {
			t.Fatalf("endpoint reached after only %d silent frames", i+1)
		}
	}

	u := d.Process(markedFrame(3), silence)
	if u == nil {
		t.Fatal("no endpoint after the silence limit elapsed")
	}

	if d.State() != StateProcessing {
		t.Errorf("expected processing state after endpoint, got %s", d.State())
	}

	// Pre-roll + onset + 11 trailing silence frames, no duplication.
	if u.FrameCount() != 13 {
		t.Errorf("expected 13 frames in utterance, got %d", u.FrameCount())
	}

	// Arrival order is preserved: pre-roll first, then onset.
	samples := u.Samples()
	if samples[0] != 1 {
		t.Errorf("expected pre-roll sample first, got marker %f", samples[0])
	}
	if samples[testChunkSize] != 2 {
		t.Errorf("expected onset frame second, got marker %f", samples[testChunkSize])
	}
}

func TestDetectorDebounceBlocksEndpoint(t *testing.T) {
	d, err := NewDetector(testDetectorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Process(markedFrame(1), speech)

	// Run past the silence limit, then reset the consecutive counter with a
	// raw-voiced frame. Duration alone must not end the utterance.
	for i := 0; i < 10; i++ {
		if u := d.Process(markedFrame(2), silence); u != nil {
			t.Fatalf("endpoint reached after only %d silent frames", i+1)
		}
	}

	if u := d.Process(markedFrame(2), voicedNotSpeech); u != nil {
		t.Fatal("endpoint reached on a voiced frame")
	}

	// Total silence duration is already past the limit, but the consecutive
	// counter restarted; the endpoint waits for three more silent frames.
	for i := 0; i < 2; i++ {
		if u := d.Process(markedFrame(2), silence); u != nil {
			t.Fatalf("endpoint reached with only %d consecutive silences", i+1)
		}
	}

	if u := d.Process(markedFrame(2), silence); u == nil {
		t.Error("no endpoint after debounce requirement was met")
	}
}

func TestDetectorDiscardsShortUtterance(t *testing.T) {
	cfg := testDetectorConfig()
	cfg.SilenceLimit = 100 * time.Millisecond
	cfg.PreRoll = 0

	d, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Process(markedFrame(1), speech)

	// Endpoint fires after 3 silent frames (192ms >= 100ms, 3 consecutive),
	// leaving a 256ms utterance below the 350ms minimum.
	var u *audio.Utterance
	for i := 0; i < 3; i++ {
		u = d.Process(markedFrame(2), silence)
	}

	if u != nil {
		t.Error("short utterance was not discarded")
	}
	if d.State() != StateWaiting {
		t.Errorf("expected waiting state after discard, got %s", d.State())
	}
	if stats := d.GetStats(); stats.UtterancesDiscarded != 1 {
		t.Errorf("expected 1 discarded utterance, got %d", stats.UtterancesDiscarded)
	}
}

func TestDetectorCompleteResets(t *testing.T) {
	d, err := NewDetector(testDetectorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Process(markedFrame(1), speech)
	for i := 0; i < 11; i++ {
		d.Process(markedFrame(2), silence)
	}

	if d.State() != StateProcessing {
		t.Fatalf("expected processing state, got %s", d.State())
	}

	// Frames during processing are dropped.
	if u := d.Process(markedFrame(3), speech); u != nil {
		t.Error("frame during processing produced an utterance")
	}

	d.Complete()

	if d.State() != StateWaiting {
		t.Errorf("expected waiting state after Complete, got %s", d.State())
	}
	if stats := d.GetStats(); stats.BufferedFrames != 0 || stats.PreRollFrames != 0 {
		t.Errorf("buffers not cleared after Complete: %+v", stats)
	}
}

func TestDetectorSequentialUtteranceIDs(t *testing.T) {
	d, err := NewDetector(testDetectorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runUtterance := func() *audio.Utterance {
		d.Process(markedFrame(1), speech)
		var u *audio.Utterance
		for i := 0; i < 11; i++ {
			if got := d.Process(markedFrame(2), silence); got != nil {
				u = got
			}
		}
		d.Complete()
		return u
	}

	first := runUtterance()
	second := runUtterance()

	if first == nil || second == nil {
		t.Fatal("expected two completed utterances")
	}
	if first.ID == second.ID {
		t.Errorf("utterance IDs not unique: %s", first.ID)
	}
	if stats := d.GetStats(); stats.UtterancesDetected != 2 {
		t.Errorf("expected 2 detected utterances, got %d", stats.UtterancesDetected)
	}
}
