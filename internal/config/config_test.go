package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid default configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "invalid chunk size",
			mutate: func(c *Config) {
				c.Audio.ChunkSize = 2048
			},
			expectError: true,
		},
		{
			name: "invalid sample rate",
			mutate: func(c *Config) {
				c.Audio.SampleRate = 4000
			},
			expectError: true,
		},
		{
			name: "stereo capture rejected",
			mutate: func(c *Config) {
				c.Audio.Channels = 2
			},
			expectError: true,
		},
		{
			name: "unknown vad mode",
			mutate: func(c *Config) {
				c.VAD.Mode = "magic"
			},
			expectError: true,
		},
		{
			name: "neural mode without model path",
			mutate: func(c *Config) {
				c.VAD.Mode = "neural"
				c.VAD.ModelPath = ""
			},
			expectError: true,
		},
		{
			name: "neural mode with model path",
			mutate: func(c *Config) {
				c.VAD.Mode = "neural"
				c.VAD.ModelPath = "models/silero_vad.onnx"
				c.VAD.Threshold = 0.5
			},
			expectError: false,
		},
		{
			name: "speech votes exceeding memory",
			mutate: func(c *Config) {
				c.VAD.SpeechMemory = 4
				c.VAD.MinSpeechVotes = 5
			},
			expectError: true,
		},
		{
			name: "negative silence limit",
			mutate: func(c *Config) {
				c.Endpoint.SilenceLimit = -0.5
			},
			expectError: true,
		},
		{
			name: "zero min silence detections",
			mutate: func(c *Config) {
				c.Endpoint.MinSilenceDetections = 0
			},
			expectError: true,
		},
		{
			name: "http engine without endpoint",
			mutate: func(c *Config) {
				c.Transcription.Endpoint = ""
			},
			expectError: true,
		},
		{
			name: "local engine without model path",
			mutate: func(c *Config) {
				c.Transcription.Engine = "local"
			},
			expectError: true,
		},
		{
			name: "local engine with model path",
			mutate: func(c *Config) {
				c.Transcription.Engine = "local"
				c.Transcription.ModelPath = "models/ggml-base.en.bin"
			},
			expectError: false,
		},
		{
			name: "archiving enabled without directory",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Dir = ""
			},
			expectError: true,
		},
		{
			name: "http server enabled without address",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Address = ""
			},
			expectError: true,
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Errorf("expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defaults := Default()
	if cfg.Audio.SampleRate != defaults.Audio.SampleRate {
		t.Errorf("expected default sample rate %d, got %d", defaults.Audio.SampleRate, cfg.Audio.SampleRate)
	}
	if cfg.Transcription.Endpoint != DefaultWhisperEndpoint {
		t.Errorf("expected default endpoint %s, got %s", DefaultWhisperEndpoint, cfg.Transcription.Endpoint)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	content := `
audio:
  chunk_size: 512
endpoint:
  silence_limit: 1.2
transcription:
  endpoint: "http://whisper.local:9000/transcribe"
`
	path := filepath.Join(t.TempDir(), "ears.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Audio.ChunkSize != 512 {
		t.Errorf("expected chunk size 512, got %d", cfg.Audio.ChunkSize)
	}
	if cfg.Endpoint.SilenceLimit != 1.2 {
		t.Errorf("expected silence limit 1.2, got %f", cfg.Endpoint.SilenceLimit)
	}
	if cfg.Transcription.Endpoint != "http://whisper.local:9000/transcribe" {
		t.Errorf("unexpected endpoint: %s", cfg.Transcription.Endpoint)
	}

	// Untouched sections keep their defaults
	if cfg.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ears.yaml")
	if err := os.WriteFile(path, []byte("audio: [not a mapping"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error, got nil")
	}
}

func TestApplyLegacy(t *testing.T) {
	tests := []struct {
		name             string
		content          string
		expectedEndpoint string
		expectedRate     int
	}{
		{
			name:             "both fields present",
			content:          `{"whisper_endpoint": "http://other:8000/transcribe", "sample_rate": 8000}`,
			expectedEndpoint: "http://other:8000/transcribe",
			expectedRate:     8000,
		},
		{
			name:             "endpoint only",
			content:          `{"whisper_endpoint": "http://other:8000/transcribe"}`,
			expectedEndpoint: "http://other:8000/transcribe",
			expectedRate:     DefaultSampleRate,
		},
		{
			name:             "unrelated fields ignored",
			content:          `{"theme": "dark", "panel_height": 32}`,
			expectedEndpoint: DefaultWhisperEndpoint,
			expectedRate:     DefaultSampleRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write legacy config: %v", err)
			}

			cfg := Default()
			if err := cfg.ApplyLegacy(path); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.Transcription.Endpoint != tt.expectedEndpoint {
				t.Errorf("expected endpoint %s, got %s", tt.expectedEndpoint, cfg.Transcription.Endpoint)
			}
			if cfg.Audio.SampleRate != tt.expectedRate {
				t.Errorf("expected sample rate %d, got %d", tt.expectedRate, cfg.Audio.SampleRate)
			}
		})
	}
}

func TestApplyLegacyMissingFile(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyLegacy(filepath.Join(t.TempDir(), "config.json")); err != nil {
		t.Errorf("missing legacy config should not error, got %v", err)
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()

	if got := cfg.Endpoint.GetSilenceLimit(); got != 700*time.Millisecond {
		t.Errorf("expected 700ms silence limit, got %s", got)
	}
	if got := cfg.Endpoint.GetPreRoll(); got != 500*time.Millisecond {
		t.Errorf("expected 500ms pre-roll, got %s", got)
	}
	if got := cfg.Endpoint.GetMinUtteranceDuration(); got != 350*time.Millisecond {
		t.Errorf("expected 350ms min utterance duration, got %s", got)
	}
	if got := cfg.Transcription.GetTimeoutDuration(); got != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", got)
	}
	if got := cfg.Audio.FrameDuration(); got != 64*time.Millisecond {
		t.Errorf("expected 64ms frame duration, got %s", got)
	}
}
