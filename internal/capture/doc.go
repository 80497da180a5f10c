// Package capture reads microphone audio through PortAudio and hands fixed
// size frames to the processing pipeline over a bounded channel.
package capture
