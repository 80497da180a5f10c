package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values matching the original MAGI shell capture component.
const (
	DefaultWhisperEndpoint = "http://localhost:5000/transcribe"
	DefaultSampleRate      = 16000
)

// Config represents the complete service configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Endpoint      EndpointConfig      `yaml:"endpoint"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Filter        FilterConfig        `yaml:"filter"`
	Archive       ArchiveConfig       `yaml:"archive"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"` // Hz
	ChunkSize  int `yaml:"chunk_size"`  // samples per frame
	Channels   int `yaml:"channels"`
	QueueSize  int `yaml:"queue_size"` // frames buffered between capture and pipeline
}

// VADConfig contains frame classifier configuration
type VADConfig struct {
	Mode                string  `yaml:"mode"` // "heuristic" or "neural"
	BaseEnergyThreshold float64 `yaml:"base_energy_threshold"`
	ZCRThreshold        float64 `yaml:"zcr_threshold"`
	SpeechMemory        int     `yaml:"speech_memory"`    // debounce window size
	MinSpeechVotes      int     `yaml:"min_speech_votes"` // votes needed within the window
	ModelPath           string  `yaml:"model_path"`       // neural mode only
	Threshold           float32 `yaml:"threshold"`        // neural mode probability cutoff
}

// EndpointConfig contains utterance endpoint detection parameters
type EndpointConfig struct {
	SilenceLimit         float64 `yaml:"silence_limit"`          // seconds of trailing silence
	PreRoll              float64 `yaml:"pre_roll"`               // seconds retained before speech onset
	MinSilenceDetections int     `yaml:"min_silence_detections"` // consecutive raw-silence frames
	MinUtteranceDuration float64 `yaml:"min_utterance_duration"` // seconds, shorter is discarded
}

// TranscriptionConfig contains transcription engine configuration
type TranscriptionConfig struct {
	Engine        string `yaml:"engine"` // "http" or "local"
	Endpoint      string `yaml:"endpoint"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	ModelPath     string `yaml:"model_path"` // local engine ggml model
	Language      string `yaml:"language"`
}

// FilterConfig contains transcript post-filter configuration
type FilterConfig struct {
	RejectCJK bool     `yaml:"reject_cjk"`
	Denylist  []string `yaml:"denylist"` // extends the built-in list
}

// ArchiveConfig controls optional WAV archiving of dispatched utterances
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// HTTPConfig contains the monitoring API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: DefaultSampleRate,
			ChunkSize:  1024,
			Channels:   1,
			QueueSize:  64,
		},
		VAD: VADConfig{
			Mode:                "heuristic",
			BaseEnergyThreshold: 0.005,
			ZCRThreshold:        0.2,
			SpeechMemory:        8,
			MinSpeechVotes:      3,
			Threshold:           0.5,
		},
		Endpoint: EndpointConfig{
			SilenceLimit:         0.7,
			PreRoll:              0.5,
			MinSilenceDetections: 3,
			MinUtteranceDuration: 0.35,
		},
		Transcription: TranscriptionConfig{
			Engine:        "http",
			Endpoint:      DefaultWhisperEndpoint,
			Timeout:       30,
			MaxRetries:    0,
			MaxConcurrent: 1,
		},
		Filter: FilterConfig{
			RejectCJK: true,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    5001,
		},
		Logging: LoggingConfig{
			Level:  "error",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file. A missing file yields the
// defaults; a present but invalid file is an error.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// legacyConfig mirrors the shared MAGI shell config.json fields this
// component consumes.
type legacyConfig struct {
	WhisperEndpoint string `json:"whisper_endpoint"`
	SampleRate      int    `json:"sample_rate"`
}

// LegacyPath returns the shared MAGI shell config location.
func LegacyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "magi", "config.json")
}

// ApplyLegacy merges the shared MAGI shell JSON config into the service
// configuration. A missing file leaves the config untouched.
func (c *Config) ApplyLegacy(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read legacy config %s: %w", path, err)
	}

	var legacy legacyConfig
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to parse legacy config %s: %w", path, err)
	}

	if legacy.WhisperEndpoint != "" {
		c.Transcription.Endpoint = legacy.WhisperEndpoint
	}
	if legacy.SampleRate > 0 {
		c.Audio.SampleRate = legacy.SampleRate
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Endpoint.Validate(); err != nil {
		return fmt.Errorf("endpoint config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.ChunkSize != 512 && a.ChunkSize != 1024 {
		return fmt.Errorf("chunk_size must be 512 or 1024 samples, got %d", a.ChunkSize)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	switch v.Mode {
	case "heuristic":
		if v.BaseEnergyThreshold <= 0 {
			return fmt.Errorf("base_energy_threshold must be positive, got %f", v.BaseEnergyThreshold)
		}
		if v.ZCRThreshold <= 0 {
			return fmt.Errorf("zcr_threshold must be positive, got %f", v.ZCRThreshold)
		}
		if v.SpeechMemory < 1 {
			return fmt.Errorf("speech_memory must be at least 1, got %d", v.SpeechMemory)
		}
		if v.MinSpeechVotes < 1 || v.MinSpeechVotes > v.SpeechMemory {
			return fmt.Errorf("min_speech_votes must be between 1 and speech_memory (%d), got %d",
				v.SpeechMemory, v.MinSpeechVotes)
		}
	case "neural":
		if v.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty in neural mode")
		}
		if v.Threshold < 0 || v.Threshold > 1 {
			return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
		}
	default:
		return fmt.Errorf("mode must be 'heuristic' or 'neural', got '%s'", v.Mode)
	}

	return nil
}

// Validate validates endpoint detection configuration
func (e *EndpointConfig) Validate() error {
	if e.SilenceLimit <= 0 {
		return fmt.Errorf("silence_limit must be positive, got %f", e.SilenceLimit)
	}

	if e.PreRoll < 0 {
		return fmt.Errorf("pre_roll cannot be negative, got %f", e.PreRoll)
	}

	if e.MinSilenceDetections < 1 {
		return fmt.Errorf("min_silence_detections must be at least 1, got %d", e.MinSilenceDetections)
	}

	if e.MinUtteranceDuration < 0 {
		return fmt.Errorf("min_utterance_duration cannot be negative, got %f", e.MinUtteranceDuration)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Engine {
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty")
		}
	case "local":
		if t.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the local engine")
		}
	default:
		return fmt.Errorf("engine must be 'http' or 'local', got '%s'", t.Engine)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates archive configuration
func (a *ArchiveConfig) Validate() error {
	if a.Enabled && a.Dir == "" {
		return fmt.Errorf("dir cannot be empty when archiving is enabled")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// FrameDuration returns the duration of one capture frame.
func (a *AudioConfig) FrameDuration() time.Duration {
	return time.Duration(float64(a.ChunkSize) / float64(a.SampleRate) * float64(time.Second))
}

// GetSilenceLimit returns the trailing silence limit as a time.Duration
func (e *EndpointConfig) GetSilenceLimit() time.Duration {
	return time.Duration(e.SilenceLimit * float64(time.Second))
}

// GetPreRoll returns the pre-roll window as a time.Duration
func (e *EndpointConfig) GetPreRoll() time.Duration {
	return time.Duration(e.PreRoll * float64(time.Second))
}

// GetMinUtteranceDuration returns the minimum utterance duration as a time.Duration
func (e *EndpointConfig) GetMinUtteranceDuration() time.Duration {
	return time.Duration(e.MinUtteranceDuration * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
