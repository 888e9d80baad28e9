package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyDeviceID   = "device_id"
	KeyDeviceName = "device_name"
	KeyTable      = "table"
	KeyBackend    = "backend"
	KeyKey        = "key"
	KeyRevision   = "revision"
	KeyReason     = "reason"
	KeyState      = "state"
	KeySlideID    = "slide_id"
	KeySlideKind  = "slide_kind"
	KeySlot       = "slot"
	KeyCount      = "count"
	KeyBytes      = "bytes"
	KeyAttempt    = "attempt"
	KeyDurationMS = "duration_ms"
	KeyJob        = "job"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRequestID  = "request_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func DeviceID(id string) slog.Attr     { return slog.String(KeyDeviceID, id) }
func DeviceName(n string) slog.Attr    { return slog.String(KeyDeviceName, n) }
func Table(t string) slog.Attr         { return slog.String(KeyTable, t) }
func Backend(b string) slog.Attr       { return slog.String(KeyBackend, b) }
func Key(k string) slog.Attr           { return slog.String(KeyKey, k) }
func Revision(r uint64) slog.Attr      { return slog.Uint64(KeyRevision, r) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func State(s string) slog.Attr         { return slog.String(KeyState, s) }
func SlideID(id string) slog.Attr      { return slog.String(KeySlideID, id) }
func SlideKind(k string) slog.Attr     { return slog.String(KeySlideKind, k) }
func Slot(s string) slog.Attr          { return slog.String(KeySlot, s) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func Bytes(n int) slog.Attr            { return slog.Int(KeyBytes, n) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Job(name string) slog.Attr        { return slog.String(KeyJob, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
