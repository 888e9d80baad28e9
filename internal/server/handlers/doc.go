// Package handlers contains HTTP handlers for the kiosk's local API.
//
// This package provides handlers for:
//   - the shared document (read, admin save, reset, foreground refresh)
//   - sync status with the recent sync journal, and device identity
//   - the server-sent event stream of status, playback commands and document swaps
//   - playback host callbacks (touch, ready, ended, failed)
//   - health
//
// Errors are written through the foundation/errors HTTPErrorAdapter so every
// failure carries its category and retry hint.
package handlers
