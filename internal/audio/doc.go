// Package audio provides frame, pre-roll, and utterance buffering plus PCM
// and WAV encoding helpers.
package audio
