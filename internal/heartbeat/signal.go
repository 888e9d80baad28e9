package heartbeat

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Signal is a coarse connection quality estimate.
type Signal struct {
	Level int    `json:"level"` // 0 offline .. 4 excellent
	Label string `json:"label"`
}

var (
	SignalOffline   = Signal{Level: 0, Label: "offline"}
	SignalPoor      = Signal{Level: 1, Label: "slow-2g"}
	SignalFair      = Signal{Level: 2, Label: "3g"}
	SignalGood      = Signal{Level: 3, Label: "4g"}
	SignalExcellent = Signal{Level: 4, Label: "wifi"}
)

// NetworkInfo estimates the current connection quality.
type NetworkInfo interface {
	Estimate(ctx context.Context) Signal
}

// StaticNetwork always reports the same signal. Hosts with their own network
// information can set it directly.
type StaticNetwork Signal

func (s StaticNetwork) Estimate(context.Context) Signal { return Signal(s) }

// LatencyProbe times a round trip to the remote store and buckets it.
type LatencyProbe struct {
	Probe   func(ctx context.Context) error
	Clock   clockwork.Clock
	Timeout time.Duration
}

// Estimate runs the probe. A failed or timed out probe reports offline.
func (p LatencyProbe) Estimate(ctx context.Context) Signal {
	if p.Probe == nil {
		return SignalOffline
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	start := clock.Now()
	if err := p.Probe(ctx); err != nil {
		return SignalOffline
	}
	return Bucket(clock.Since(start))
}

// Bucket maps a round-trip time to a signal level.
func Bucket(rtt time.Duration) Signal {
	switch {
	case rtt < 150*time.Millisecond:
		return SignalExcellent
	case rtt < 400*time.Millisecond:
		return SignalGood
	case rtt < time.Second:
		return SignalFair
	default:
		return SignalPoor
	}
}
