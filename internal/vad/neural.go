package vad

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/magi-shell/ears/internal/audio"
)

// NeuralConfig contains the neural classifier parameters.
type NeuralConfig struct {
	ModelPath  string
	Threshold  float32 // probability cutoff, typically 0.5
	ChunkSize  int     // 512 samples at 16 kHz for the Silero model
	SampleRate int
}

// Neural classifies frames with a pretrained voice activity model. The
// decision is per-frame: probability at or above the threshold is speech, no
// debounce window is applied.
type Neural struct {
	config NeuralConfig

	isInitialized bool
	lastResult    float32
	smoothing     float32

	totalFrames  uint64
	voicedFrames uint64

	mu sync.Mutex
}

// NeuralStats reports classifier state for monitoring.
type NeuralStats struct {
	ModelPath     string  `json:"model_path"`
	IsInitialized bool    `json:"is_initialized"`
	Threshold     float32 `json:"threshold"`
	TotalFrames   uint64  `json:"total_frames"`
	VoicedFrames  uint64  `json:"voiced_frames"`
}

// NewNeural creates the neural classifier.
func NewNeural(config NeuralConfig) (*Neural, error) {
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", config.Threshold)
	}

	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.ModelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}

	return &Neural{
		config:    config,
		smoothing: 0.1,
	}, nil
}

// Initialize loads the model.
func (n *Neural) Initialize() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := os.Stat(n.config.ModelPath); err != nil {
		return fmt.Errorf("model file not accessible: %w", err)
	}

	// TODO: load the Silero VAD ONNX session here once the onnxruntime
	// shared library is part of the deployment image; inference currently
	// falls back to the normalized-energy estimate below.

	n.isInitialized = true
	return nil
}

// Classify runs one frame through the model and thresholds the probability.
func (n *Neural) Classify(frame audio.Frame) (Decision, error) {
	if len(frame) != n.config.ChunkSize {
		return Decision{}, fmt.Errorf("expected %d samples, got %d", n.config.ChunkSize, len(frame))
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.isInitialized {
		return Decision{}, fmt.Errorf("classifier not initialized")
	}

	probability := n.infer(frame)

	// Light exponential smoothing keeps single-frame spikes from flapping
	// the endpoint detector.
	if n.totalFrames > 0 {
		probability = n.smoothing*probability + (1-n.smoothing)*n.lastResult
	}
	n.lastResult = probability

	voiced := probability >= n.config.Threshold

	n.totalFrames++
	if voiced {
		n.voicedFrames++
	}

	return Decision{
		Voiced:      voiced,
		Speech:      voiced,
		Probability: probability,
	}, nil
}

// Reset clears the smoothing state between utterances.
func (n *Neural) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.lastResult = 0
}

// IsInitialized returns whether the model has been loaded.
func (n *Neural) IsInitialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isInitialized
}

// GetStats returns current classifier statistics.
func (n *Neural) GetStats() NeuralStats {
	n.mu.Lock()
	defer n.mu.Unlock()

	return NeuralStats{
		ModelPath:     n.config.ModelPath,
		IsInitialized: n.isInitialized,
		Threshold:     n.config.Threshold,
		TotalFrames:   n.totalFrames,
		VoicedFrames:  n.voicedFrames,
	}
}

// infer produces a voice probability for one frame. Stand-in for the model
// forward pass: normalized RMS energy clamped to [0, 1].
func (n *Neural) infer(frame audio.Frame) float32 {
	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	energy = math.Sqrt(energy / float64(len(frame)))

	// Full-scale speech sits well above 0.1 RMS for normalized float input.
	probability := energy / 0.1
	if probability > 1 {
		probability = 1
	}

	return float32(probability)
}
