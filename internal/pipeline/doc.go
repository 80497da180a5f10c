// Package pipeline wires capture, classification, endpoint detection,
// transcription, and filtering into the single consumer loop.
package pipeline
