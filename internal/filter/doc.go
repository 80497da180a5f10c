// Package filter suppresses known transcription hallucinations and
// unexpected-script output.
package filter
