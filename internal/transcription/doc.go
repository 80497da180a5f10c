// Package transcription dispatches assembled utterances to a transcription
// backend, over HTTP or through an in-process whisper.cpp model.
package transcription
