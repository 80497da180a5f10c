package transcription

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/magi-shell/ears/internal/audio"
)

// LocalConfig contains the in-process whisper.cpp engine configuration.
type LocalConfig struct {
	ModelPath string
	Language  string // "auto" lets the model detect it
	Threads   int    // <=0 uses NumCPU
}

// Local runs whisper.cpp in-process through the cgo bindings. One inference
// runs at a time; the model context is not reentrant.
type Local struct {
	config LocalConfig
	model  whisper.Model

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64

	mu sync.Mutex
}

// NewLocal loads the whisper model from disk.
func NewLocal(config LocalConfig) (*Local, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}

	if config.Language == "" {
		config.Language = "auto"
	}

	if config.Threads <= 0 {
		config.Threads = runtime.NumCPU()
	}

	model, err := whisper.New(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}

	return &Local{
		config: config,
		model:  model,
	}, nil
}

// Transcribe runs the model on the utterance samples. The samples must be
// mono 16 kHz float32, which is what the capture layer produces.
func (l *Local) Transcribe(ctx context.Context, u *audio.Utterance) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalRequests++

	samples := u.Samples()
	if len(samples) == 0 {
		l.failedRequests++
		return "", fmt.Errorf("utterance %s has no samples", u.ID)
	}

	wctx, err := l.model.NewContext()
	if err != nil {
		l.failedRequests++
		return "", fmt.Errorf("failed to create whisper context: %w", err)
	}

	if err := wctx.SetLanguage(l.config.Language); err != nil {
		l.failedRequests++
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	wctx.SetThreads(uint(l.config.Threads))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		l.failedRequests++
		return "", fmt.Errorf("whisper inference failed: %w", err)
	}

	var parts []string
	for {
		select {
		case <-ctx.Done():
			l.failedRequests++
			return "", ctx.Err()
		default:
		}

		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			l.failedRequests++
			return "", fmt.Errorf("failed to read segment: %w", err)
		}

		parts = append(parts, strings.TrimSpace(segment.Text))
	}

	l.successRequests++
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model == nil {
		return nil
	}
	return l.model.Close()
}

// LocalStats reports engine statistics.
type LocalStats struct {
	ModelPath       string `json:"model_path"`
	TotalRequests   uint64 `json:"total_requests"`
	SuccessRequests uint64 `json:"success_requests"`
	FailedRequests  uint64 `json:"failed_requests"`
}

// GetStats returns current engine statistics.
func (l *Local) GetStats() LocalStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LocalStats{
		ModelPath:       l.config.ModelPath,
		TotalRequests:   l.totalRequests,
		SuccessRequests: l.successRequests,
		FailedRequests:  l.failedRequests,
	}
}
