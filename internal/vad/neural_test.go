package vad

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/magi-shell/ears/internal/audio"
)

func testModelPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vad.onnx")
	if err := os.WriteFile(path, []byte("model"), 0644); err != nil {
		t.Fatalf("failed to create model stub: %v", err)
	}
	return path
}

func testNeuralConfig(modelPath string) NeuralConfig {
	return NeuralConfig{
		ModelPath:  modelPath,
		Threshold:  0.5,
		ChunkSize:  testChunkSize,
		SampleRate: testSampleRate,
	}
}

func TestNeuralValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NeuralConfig)
	}{
		{"empty model path", func(c *NeuralConfig) { c.ModelPath = "" }},
		{"threshold above one", func(c *NeuralConfig) { c.Threshold = 1.5 }},
		{"negative threshold", func(c *NeuralConfig) { c.Threshold = -0.1 }},
		{"zero chunk size", func(c *NeuralConfig) { c.ChunkSize = 0 }},
		{"zero sample rate", func(c *NeuralConfig) { c.SampleRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testNeuralConfig("models/vad.onnx")
			tt.mutate(&cfg)
			if _, err := NewNeural(cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNeuralRequiresInitialize(t *testing.T) {
	n, err := NewNeural(testNeuralConfig(testModelPath(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := n.Classify(make(audio.Frame, testChunkSize)); err == nil {
		t.Error("expected error before Initialize, got nil")
	}
}

func TestNeuralInitializeMissingModel(t *testing.T) {
	n, err := NewNeural(testNeuralConfig(filepath.Join(t.TempDir(), "missing.onnx")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := n.Initialize(); err == nil {
		t.Error("expected error for missing model file, got nil")
	}
}

func TestNeuralClassify(t *testing.T) {
	n, err := NewNeural(testNeuralConfig(testModelPath(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	// Silence stays below the threshold.
	d, err := n.Classify(make(audio.Frame, testChunkSize))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Voiced {
		t.Error("silence classified as voiced")
	}

	// Loud audio clears it. Per-frame decisions carry no debounce, so Speech
	// tracks Voiced directly. A fresh classifier avoids the smoothing carry
	// from the silent frame above.
	loud := make(audio.Frame, testChunkSize)
	for i := range loud {
		loud[i] = 0.5
	}

	fresh, err := NewNeural(testNeuralConfig(testModelPath(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fresh.Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	d, err = fresh.Classify(loud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Voiced || !d.Speech {
		t.Errorf("loud frame not classified as speech, probability=%f", d.Probability)
	}
}

func TestNeuralFrameSizeMismatch(t *testing.T) {
	n, err := NewNeural(testNeuralConfig(testModelPath(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Initialize(); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if _, err := n.Classify(make(audio.Frame, 100)); err == nil {
		t.Error("expected error for wrong frame size, got nil")
	}
}
