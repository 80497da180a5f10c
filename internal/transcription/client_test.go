package transcription

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/magi-shell/ears/internal/audio"
)

func testUtterance(samples int) *audio.Utterance {
	u := audio.NewUtterance("utt_test_1", 16000, time.Now())
	frame := make(audio.Frame, samples)
	for i := range frame {
		frame[i] = 0.25
	}
	u.Append(frame)
	return u
}

func testClient(t *testing.T, endpoint string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Endpoint:   endpoint,
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty endpoint, got nil")
	}

	c, err := NewClient(Config{Endpoint: "http://localhost:5000/transcribe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.config.Timeout <= 0 {
		t.Error("timeout default not applied")
	}
	if cap(c.semaphore) != 1 {
		t.Errorf("expected default max concurrent 1, got %d", cap(c.semaphore))
	}
}

func TestTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("missing audio field: %v", err)
			http.Error(w, "missing audio", http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Filename != "audio.wav" {
			t.Errorf("expected filename audio.wav, got %s", header.Filename)
		}

		data, _ := io.ReadAll(file)
		// 1024 float32 samples at 4 bytes each.
		if len(data) != 4096 {
			t.Errorf("expected 4096 payload bytes, got %d", len(data))
		}

		if r.FormValue("utterance_id") != "utt_test_1" {
			t.Errorf("unexpected utterance_id: %s", r.FormValue("utterance_id"))
		}
		if r.FormValue("sample_rate") != "16000" {
			t.Errorf("unexpected sample_rate: %s", r.FormValue("sample_rate"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcription": "open the terminal"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, 0)
	defer c.Close()

	text, err := c.Transcribe(context.Background(), testUtterance(1024))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "open the terminal" {
		t.Errorf("unexpected transcription: %q", text)
	}

	stats := c.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testClient(t, server.URL, 0)
	defer c.Close()

	if _, err := c.Transcribe(context.Background(), testUtterance(512)); err == nil {
		t.Error("expected error for 500 response, got nil")
	}

	stats := c.GetStats()
	if stats.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestTranscribeMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := testClient(t, server.URL, 0)
	defer c.Close()

	if _, err := c.Transcribe(context.Background(), testUtterance(512)); err == nil {
		t.Error("expected error for malformed JSON, got nil")
	}
}

func TestTranscribeRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"transcription": "second time lucky"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, 1)
	defer c.Close()

	text, err := c.Transcribe(context.Background(), testUtterance(512))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "second time lucky" {
		t.Errorf("unexpected transcription: %q", text)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}

	if stats := c.GetStats(); stats.TotalRetries != 1 {
		t.Errorf("expected 1 retry, got %d", stats.TotalRetries)
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.Write([]byte(`{"transcription": "too late"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, 0)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Transcribe(ctx, testUtterance(512)); err == nil {
		t.Error("expected error for cancelled context, got nil")
	}
}
