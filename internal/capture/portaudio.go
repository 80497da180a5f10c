package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/magi-shell/ears/internal/audio"
	"github.com/magi-shell/ears/internal/metrics"
)

// Source delivers capture frames on a channel. The channel closes when the
// source stops.
type Source interface {
	Frames() <-chan audio.Frame
	Stop() error
}

// Config contains microphone capture configuration.
type Config struct {
	SampleRate int
	ChunkSize  int
	BufferSize int // frames buffered before the reader starts dropping
}

// Mic reads mono float32 frames from the default input device. A full buffer
// drops the incoming frame rather than blocking the audio callback.
type Mic struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics // optional

	stream *portaudio.Stream
	buf    []float32
	frames chan audio.Frame
	done   chan struct{}

	framesCaptured uint64
	framesDropped  uint64

	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// Stats reports capture statistics.
type Stats struct {
	FramesCaptured uint64 `json:"frames_captured"`
	FramesDropped  uint64 `json:"frames_dropped"`
}

// NewMic opens the default input device and starts reading. The metrics
// parameter may be nil.
func NewMic(config Config, logger *slog.Logger, m *metrics.Metrics) (*Mic, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}

	if config.BufferSize <= 0 {
		config.BufferSize = 32
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	mic := &Mic{
		config:  config,
		logger:  logger,
		metrics: m,
		buf:     make([]float32, config.ChunkSize),
		frames:  make(chan audio.Frame, config.BufferSize),
		done:    make(chan struct{}),
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(config.SampleRate), config.ChunkSize, mic.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	mic.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	mic.wg.Add(1)
	go mic.readLoop()

	logger.Info("Microphone capture started",
		"sample_rate", config.SampleRate,
		"chunk_size", config.ChunkSize,
		"buffer_size", config.BufferSize)

	return mic, nil
}

// Frames returns the capture channel.
func (m *Mic) Frames() <-chan audio.Frame {
	return m.frames
}

// Stop halts capture and closes the frame channel.
func (m *Mic) Stop() error {
	var err error

	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		if stopErr := m.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop stream: %w", stopErr)
		}
		if closeErr := m.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close stream: %w", closeErr)
		}

		portaudio.Terminate()
		close(m.frames)

		m.logger.Info("Microphone capture stopped",
			"frames_captured", m.framesCaptured,
			"frames_dropped", m.framesDropped)
	})

	return err
}

// GetStats returns current capture statistics.
func (m *Mic) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		FramesCaptured: m.framesCaptured,
		FramesDropped:  m.framesDropped,
	}
}

// readLoop copies frames out of the shared stream buffer. Each frame is
// cloned before publishing because the next Read overwrites the buffer.
func (m *Mic) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		default:
		}

		if err := m.stream.Read(); err != nil {
			// Overflow means the host dropped samples between reads. Keep
			// going, the classifier tolerates a discontinuity.
			if err == portaudio.InputOverflowed {
				m.logger.Debug("Input overflow, continuing")
				continue
			}

			select {
			case <-m.done:
				return
			default:
			}

			m.logger.Error("Stream read failed", "error", err)
			return
		}

		frame := audio.Frame(m.buf).Clone()

		m.mu.Lock()
		m.framesCaptured++
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.RecordFrameCaptured()
		}

		select {
		case m.frames <- frame:
		default:
			m.mu.Lock()
			m.framesDropped++
			dropped := m.framesDropped
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.RecordFrameDropped()
			}

			if dropped%100 == 1 {
				m.logger.Warn("Frame buffer full, dropping frames", "total_dropped", dropped)
			}
		}
	}
}
