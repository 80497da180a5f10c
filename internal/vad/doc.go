// Package vad classifies audio frames as speech or silence, using either
// energy/zero-crossing heuristics with adaptive calibration or a pretrained
// neural voice activity model.
package vad
