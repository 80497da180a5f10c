package transcription

import (
	"context"

	"github.com/magi-shell/ears/internal/audio"
)

// Engine turns an assembled utterance into text. Implementations: the HTTP
// client talking to a whisper server, and the in-process whisper.cpp model.
type Engine interface {
	// Transcribe blocks until the utterance is transcribed or fails. An
	// empty string with nil error is a valid (silent) result.
	Transcribe(ctx context.Context, u *audio.Utterance) (string, error)

	// Close releases engine resources.
	Close() error
}
