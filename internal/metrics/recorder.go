package metrics

import "time"

// ResultLabel enumerates operation outcomes for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// FetchOutcome describes what a document fetch did to the in-memory document.
type FetchOutcome string

const (
	FetchApplied   FetchOutcome = "applied"
	FetchGuarded   FetchOutcome = "guarded"   // skipped before contacting the remote store
	FetchDiscarded FetchOutcome = "discarded" // result dropped after the post-await guard check
	FetchFailed    FetchOutcome = "failed"
)

// SlideOutcome describes how a slide left the screen.
type SlideOutcome string

const (
	SlideCompleted SlideOutcome = "completed"
	SlideWatchdog  SlideOutcome = "watchdog"
	SlideFailed    SlideOutcome = "failed"
)

// Recorder defines observability hooks for sync, playback and heartbeat.
type Recorder interface {
	IncFetch(outcome FetchOutcome)
	ObserveFetchDuration(d time.Duration)
	IncSave(result ResultLabel)
	ObserveSaveDuration(d time.Duration)
	SetOutboxPending(pending bool)
	IncOutboxResend(result ResultLabel)
	IncExpired(n int)
	IncCacheWrite(result ResultLabel)
	IncSlide(kind string, outcome SlideOutcome)
	SetPlaybackState(state string)
	IncHeartbeat(result ResultLabel)
	SetSignalLevel(level int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncFetch(FetchOutcome)              {}
func (NoopRecorder) ObserveFetchDuration(time.Duration) {}
func (NoopRecorder) IncSave(ResultLabel)                {}
func (NoopRecorder) ObserveSaveDuration(time.Duration)  {}
func (NoopRecorder) SetOutboxPending(bool)              {}
func (NoopRecorder) IncOutboxResend(ResultLabel)        {}
func (NoopRecorder) IncExpired(int)                     {}
func (NoopRecorder) IncCacheWrite(ResultLabel)          {}
func (NoopRecorder) IncSlide(string, SlideOutcome)      {}
func (NoopRecorder) SetPlaybackState(string)            {}
func (NoopRecorder) IncHeartbeat(ResultLabel)           {}
func (NoopRecorder) SetSignalLevel(int)                 {}
