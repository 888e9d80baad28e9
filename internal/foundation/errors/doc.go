// Package errors provides classified error primitives used across the kiosk runtime.
//
// Categories follow how the runtime recovers from a failure:
//   - network: remote store unreachable, retried on the next poll, never shown for background work
//   - stale: a fetch discarded by the local write guard, routine and never surfaced
//   - cache: local persistence failed, degraded by dropping the archive partition
//   - sync: an explicit save did not reach the remote store, the edit is kept locally
//   - playback: a media asset failed, the slide is skipped
//   - identity: the device was removed remotely and must be provisioned again
//
// Example usage:
//
//	err := errors.SyncError("save failed").
//		WithCause(pushErr).
//		WithContext("table", "store_config").
//		Build()
package errors
