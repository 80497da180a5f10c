package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/magi-shell/ears/internal/audio"
	"github.com/magi-shell/ears/internal/endpoint"
	"github.com/magi-shell/ears/internal/filter"
	"github.com/magi-shell/ears/internal/metrics"
	"github.com/magi-shell/ears/internal/transcription"
	"github.com/magi-shell/ears/internal/vad"
)

// Status glyphs written to the status writer on state changes. The leading
// carriage return overwrites the previous glyph on a terminal.
const (
	glyphWaiting    = "\r🎤"
	glyphListening  = "\r📝"
	glyphProcessing = "\r⚙️"
	glyphError      = "\r❌"
)

// Broadcaster receives accepted transcripts for fan-out to live subscribers.
type Broadcaster interface {
	Broadcast(text string)
}

// Pipeline is the single consumer loop: classify each frame, feed the
// endpoint detector, and dispatch completed utterances for transcription.
// Dispatch is synchronous, so transcripts come out in utterance order.
type Pipeline struct {
	classifier  vad.Classifier
	detector    *endpoint.Detector
	engine      transcription.Engine
	filter      *filter.Filter
	archive     *audio.ArchiveWriter // nil disables archiving
	broadcaster Broadcaster          // nil disables fan-out
	metrics     *metrics.Metrics
	logger      *slog.Logger

	out     io.Writer // accepted transcripts, one per line
	statusW io.Writer // status glyphs

	lastState endpoint.State

	// Statistics
	framesProcessed     uint64
	transcriptsEmitted  uint64
	transcriptsFiltered uint64
	dispatchFailures    uint64

	mu sync.Mutex
}

// Options configures a pipeline. Classifier, Detector, Engine, Filter,
// Metrics, Logger, Out, and StatusW are required.
type Options struct {
	Classifier  vad.Classifier
	Detector    *endpoint.Detector
	Engine      transcription.Engine
	Filter      *filter.Filter
	Archive     *audio.ArchiveWriter
	Broadcaster Broadcaster
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Out         io.Writer
	StatusW     io.Writer
}

// Stats reports pipeline statistics.
type Stats struct {
	FramesProcessed     uint64 `json:"frames_processed"`
	TranscriptsEmitted  uint64 `json:"transcripts_emitted"`
	TranscriptsFiltered uint64 `json:"transcripts_filtered"`
	DispatchFailures    uint64 `json:"dispatch_failures"`
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Filter == nil {
		return nil, fmt.Errorf("filter is required")
	}
	if opts.Metrics == nil {
		return nil, fmt.Errorf("metrics are required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Out == nil || opts.StatusW == nil {
		return nil, fmt.Errorf("output writers are required")
	}

	return &Pipeline{
		classifier:  opts.Classifier,
		detector:    opts.Detector,
		engine:      opts.Engine,
		filter:      opts.Filter,
		archive:     opts.Archive,
		broadcaster: opts.Broadcaster,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		out:         opts.Out,
		statusW:     opts.StatusW,
		lastState:   endpoint.StateWaiting,
	}, nil
}

// Run consumes frames until the channel closes or the context is cancelled.
// Nothing inside the loop is fatal: classification errors skip the frame and
// dispatch errors drop the utterance.
func (p *Pipeline) Run(ctx context.Context, frames <-chan audio.Frame) error {
	p.writeStatus(glyphWaiting)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Pipeline stopping", "reason", ctx.Err())
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				p.logger.Info("Frame source closed, pipeline stopping")
				return nil
			}
			p.processFrame(ctx, frame)
		}
	}
}

// GetStats returns current pipeline statistics.
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		FramesProcessed:     p.framesProcessed,
		TranscriptsEmitted:  p.transcriptsEmitted,
		TranscriptsFiltered: p.transcriptsFiltered,
		DispatchFailures:    p.dispatchFailures,
	}
}

// processFrame runs one frame through classification and endpoint detection.
func (p *Pipeline) processFrame(ctx context.Context, frame audio.Frame) {
	start := time.Now()

	decision, err := p.classifier.Classify(frame)
	if err != nil {
		p.logger.Warn("Frame classification failed, skipping frame", "error", err)
		return
	}

	p.mu.Lock()
	p.framesProcessed++
	p.mu.Unlock()

	p.metrics.RecordFrameProcessed(decision.Voiced, decision.Speech, time.Since(start).Seconds())
	p.metrics.SetCalibrating(decision.Calibrating)

	if decision.Calibrating {
		return
	}

	utterance := p.detector.Process(frame, decision)
	p.updateStatus()

	if utterance == nil {
		return
	}

	p.dispatch(ctx, utterance)
	p.detector.Complete()
	p.classifier.Reset()
	p.updateStatus()
}

// dispatch transcribes one utterance and emits the transcript if it survives
// the filter. A failed dispatch loses the utterance; audio is not requeued.
func (p *Pipeline) dispatch(ctx context.Context, u *audio.Utterance) {
	p.metrics.RecordUtteranceDetected(u.Duration().Seconds())

	p.logger.Info("Utterance detected",
		"utterance_id", u.ID,
		"duration", u.Duration(),
		"frames", u.FrameCount())

	if p.archive != nil {
		if path, err := p.archive.Write(u); err != nil {
			p.logger.Warn("Failed to archive utterance", "utterance_id", u.ID, "error", err)
		} else {
			p.logger.Debug("Utterance archived", "utterance_id", u.ID, "path", path)
		}
	}

	start := time.Now()
	p.metrics.RecordTranscriptionRequest()

	text, err := p.engine.Transcribe(ctx, u)
	if err != nil {
		p.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		p.writeStatus(glyphError)

		p.mu.Lock()
		p.dispatchFailures++
		p.mu.Unlock()

		p.logger.Error("Transcription failed", "utterance_id", u.ID, "error", err)
		return
	}

	p.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	if p.filter.IsHallucination(text) {
		p.metrics.RecordTranscriptFiltered()

		p.mu.Lock()
		p.transcriptsFiltered++
		p.mu.Unlock()

		p.logger.Debug("Transcript suppressed", "utterance_id", u.ID, "text", text)
		return
	}

	p.emit(u, text)
}

// emit writes one accepted transcript line and fans it out.
func (p *Pipeline) emit(u *audio.Utterance, text string) {
	if _, err := fmt.Fprintln(p.out, text); err != nil {
		p.logger.Error("Failed to write transcript", "utterance_id", u.ID, "error", err)
		return
	}

	p.metrics.RecordTranscriptEmitted()

	p.mu.Lock()
	p.transcriptsEmitted++
	p.mu.Unlock()

	if p.broadcaster != nil {
		p.broadcaster.Broadcast(text)
	}

	p.logger.Info("Transcript emitted", "utterance_id", u.ID, "length", len(text))
}

// updateStatus writes a glyph when the detector state changes.
func (p *Pipeline) updateStatus() {
	state := p.detector.State()

	p.mu.Lock()
	changed := state != p.lastState
	p.lastState = state
	p.mu.Unlock()

	if !changed {
		return
	}

	switch state {
	case endpoint.StateWaiting:
		p.writeStatus(glyphWaiting)
	case endpoint.StateListening:
		p.writeStatus(glyphListening)
	case endpoint.StateProcessing:
		p.writeStatus(glyphProcessing)
	}
}

func (p *Pipeline) writeStatus(glyph string) {
	fmt.Fprint(p.statusW, glyph)
}
