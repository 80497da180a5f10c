// Command mock-whisper is a stand-in transcription server for local testing
// of the ears pipeline without a real whisper deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type transcriptionResponse struct {
	Transcription string `json:"transcription"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	utteranceID := r.FormValue("utterance_id")
	sampleRate := r.FormValue("sample_rate")
	duration := r.FormValue("duration")

	// Get audio payload
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error getting audio field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio data", http.StatusInternalServerError)
		return
	}

	// Raw float32 mono PCM, 4 bytes per sample
	samples := len(audioData) / 4

	log.Printf("transcription request: utterance=%s sample_rate=%s duration=%ss filename=%s bytes=%d samples=%d",
		utteranceID, sampleRate, duration, header.Filename, len(audioData), samples)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := transcriptionResponse{
		Transcription: fmt.Sprintf("mock transcription of %d samples", samples),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func main() {
	addr := flag.String("addr", ":5000", "Listen address")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	log.Printf("mock whisper server listening on %s", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal(err)
	}
}
