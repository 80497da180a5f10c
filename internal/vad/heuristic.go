package vad

import (
	"fmt"
	"math"
	"sync"

	"github.com/magi-shell/ears/internal/audio"
)

const (
	bandPassLow  = 300.0  // Hz
	bandPassHigh = 3000.0 // Hz

	energyHistoryDepth = 20
	adaptiveWindow     = 10  // trailing energy samples feeding the adaptive threshold
	adaptiveFactor     = 1.2 // threshold = recent average energy x factor, floored at base
)

// HeuristicConfig contains the energy/ZCR classifier parameters.
type HeuristicConfig struct {
	ChunkSize           int
	SampleRate          int
	BaseEnergyThreshold float64
	ZCRThreshold        float64
	SpeechMemory        int // debounce window size
	MinSpeechVotes      int // voiced frames within the window required for speech
}

// Heuristic classifies frames by band-passed RMS energy and zero-crossing
// rate against thresholds seeded by a calibration pass over the first second
// of audio.
type Heuristic struct {
	config HeuristicConfig

	highPass biquad
	lowPass  biquad

	// Calibration
	calibrationTarget int
	calEnergies       []float64
	calZCRs           []float64
	calibrated        bool

	// Adaptive thresholds
	energyThreshold float64
	zcrThreshold    float64
	energyHistory   []float64

	// Debounce window
	speechHistory []bool
	historyPos    int

	// Statistics
	totalFrames  uint64
	voicedFrames uint64

	mu sync.Mutex
}

// HeuristicStats reports classifier state for monitoring.
type HeuristicStats struct {
	Calibrated      bool    `json:"calibrated"`
	EnergyThreshold float64 `json:"energy_threshold"`
	ZCRThreshold    float64 `json:"zcr_threshold"`
	TotalFrames     uint64  `json:"total_frames"`
	VoicedFrames    uint64  `json:"voiced_frames"`
}

// NewHeuristic creates the heuristic classifier.
func NewHeuristic(config HeuristicConfig) (*Heuristic, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.BaseEnergyThreshold <= 0 {
		return nil, fmt.Errorf("base energy threshold must be positive, got %f", config.BaseEnergyThreshold)
	}

	if config.SpeechMemory < 1 {
		return nil, fmt.Errorf("speech memory must be at least 1, got %d", config.SpeechMemory)
	}

	if config.MinSpeechVotes < 1 || config.MinSpeechVotes > config.SpeechMemory {
		return nil, fmt.Errorf("min speech votes must be between 1 and %d, got %d",
			config.SpeechMemory, config.MinSpeechVotes)
	}

	h := &Heuristic{
		config:            config,
		highPass:          newHighPass(bandPassLow, float64(config.SampleRate)),
		lowPass:           newLowPass(bandPassHigh, float64(config.SampleRate)),
		calibrationTarget: config.SampleRate / config.ChunkSize,
		energyThreshold:   config.BaseEnergyThreshold,
		zcrThreshold:      config.ZCRThreshold,
		speechHistory:     make([]bool, config.SpeechMemory),
	}

	return h, nil
}

// Classify processes one frame through the band-pass filter, computes energy
// and zero-crossing rate, and applies the adaptive thresholds.
func (h *Heuristic) Classify(frame audio.Frame) (Decision, error) {
	if len(frame) != h.config.ChunkSize {
		return Decision{}, fmt.Errorf("expected %d samples, got %d", h.config.ChunkSize, len(frame))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalFrames++

	filtered := h.bandPass(frame)
	energy := rmsEnergy(filtered)
	zcr := zeroCrossingRate(filtered)

	h.energyHistory = append(h.energyHistory, energy)
	if len(h.energyHistory) > energyHistoryDepth {
		h.energyHistory = h.energyHistory[1:]
	}

	if !h.calibrated {
		h.calibrate(energy, zcr)
		return Decision{Calibrating: true, Energy: energy, ZCR: zcr}, nil
	}

	// The energy threshold trails recent ambient level, floored at the base
	// constant so a quiet room never drives it to zero.
	if len(h.energyHistory) > 1 {
		recent := h.energyHistory
		if len(recent) > adaptiveWindow {
			recent = recent[len(recent)-adaptiveWindow:]
		}
		h.energyThreshold = math.Max(h.config.BaseEnergyThreshold, mean(recent)*adaptiveFactor)
	}

	voiced := energy > h.energyThreshold && zcr > h.zcrThreshold*0.5
	if voiced {
		h.voicedFrames++
	}

	h.speechHistory[h.historyPos] = voiced
	h.historyPos = (h.historyPos + 1) % len(h.speechHistory)

	votes := 0
	for _, v := range h.speechHistory {
		if v {
			votes++
		}
	}

	return Decision{
		Voiced: voiced,
		Speech: votes >= h.config.MinSpeechVotes,
		Energy: energy,
		ZCR:    zcr,
	}, nil
}

// Reset clears the debounce window between utterances. Calibration and the
// adaptive energy history are kept.
func (h *Heuristic) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.speechHistory {
		h.speechHistory[i] = false
	}
	h.historyPos = 0
}

// Calibrated reports whether the calibration pass has finished.
func (h *Heuristic) Calibrated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calibrated
}

// EnergyThreshold returns the current adaptive energy threshold.
func (h *Heuristic) EnergyThreshold() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.energyThreshold
}

// GetStats returns current classifier statistics.
func (h *Heuristic) GetStats() HeuristicStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return HeuristicStats{
		Calibrated:      h.calibrated,
		EnergyThreshold: h.energyThreshold,
		ZCRThreshold:    h.zcrThreshold,
		TotalFrames:     h.totalFrames,
		VoicedFrames:    h.voicedFrames,
	}
}

// calibrate accumulates ambient measurements; once a second of audio has been
// observed the thresholds are seeded from its mean and deviation.
func (h *Heuristic) calibrate(energy, zcr float64) {
	h.calEnergies = append(h.calEnergies, energy)
	h.calZCRs = append(h.calZCRs, zcr)

	if len(h.calEnergies) < h.calibrationTarget {
		return
	}

	h.energyThreshold = math.Max(
		h.config.BaseEnergyThreshold,
		mean(h.calEnergies)*2+stddev(h.calEnergies),
	)
	h.zcrThreshold = mean(h.calZCRs) + stddev(h.calZCRs)
	h.calibrated = true
	h.calEnergies = nil
	h.calZCRs = nil
}

// bandPass runs the frame through the 300-3000 Hz cascade. Filter state is
// zeroed per frame, matching the stateless per-chunk filtering of the
// original detector.
func (h *Heuristic) bandPass(frame audio.Frame) []float64 {
	out := make([]float64, len(frame))
	hp := h.highPass.freshState()
	lp := h.lowPass.freshState()
	for i, s := range frame {
		out[i] = lp.process(hp.process(float64(s)))
	}
	return out
}

func rmsEnergy(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// zeroCrossingRate is the fraction of adjacent sample pairs whose sign
// differs.
func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	transitions := 0
	prev := math.Signbit(samples[0])
	for _, s := range samples[1:] {
		cur := math.Signbit(s)
		if cur != prev {
			transitions++
		}
		prev = cur
	}
	return float64(transitions) / float64(len(samples)-1)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// biquad holds normalized second-order IIR coefficients.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// biquadState is a direct form II transposed evaluator over one frame.
type biquadState struct {
	coeff  biquad
	z1, z2 float64
}

func (b biquad) freshState() biquadState {
	return biquadState{coeff: b}
}

func (s *biquadState) process(x float64) float64 {
	c := s.coeff
	y := c.b0*x + s.z1
	s.z1 = c.b1*x - c.a1*y + s.z2
	s.z2 = c.b2*x - c.a2*y
	return y
}

// newLowPass builds an RBJ low-pass biquad at the given cutoff.
func newLowPass(cutoff, sampleRate float64) biquad {
	w := 2 * math.Pi * cutoff / sampleRate
	cosw := math.Cos(w)
	alpha := math.Sin(w) / math.Sqrt2 // Q = 1/sqrt(2)

	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// newHighPass builds an RBJ high-pass biquad at the given cutoff.
func newHighPass(cutoff, sampleRate float64) biquad {
	w := 2 * math.Pi * cutoff / sampleRate
	cosw := math.Cos(w)
	alpha := math.Sin(w) / math.Sqrt2 // Q = 1/sqrt(2)

	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}
