// Package endpoint detects utterance boundaries: a small state machine that
// tracks trailing silence to decide when speech has ended.
package endpoint
