// Package server implements the monitoring HTTP API and the WebSocket
// transcript feed.
package server
