package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "showroom"

var playbackStates = []string{"active", "playing", "sleeping"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	fetches       *prom.CounterVec
	fetchDuration prom.Histogram
	saves         *prom.CounterVec
	saveDuration  prom.Histogram
	outboxPending prom.Gauge
	outboxResends *prom.CounterVec
	expired       prom.Counter
	cacheWrites   *prom.CounterVec
	slides        *prom.CounterVec
	playbackState *prom.GaugeVec
	heartbeats    *prom.CounterVec
	signalLevel   prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.fetches = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "document_fetches_total",
			Help:      "Document fetches by outcome",
		}, []string{"outcome"})
		pr.fetchDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "document_fetch_duration_seconds",
			Help:      "Duration of remote document fetches",
			Buckets:   prom.DefBuckets,
		})
		pr.saves = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "document_saves_total",
			Help:      "Explicit document saves by result",
		}, []string{"result"})
		pr.saveDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "document_save_duration_seconds",
			Help:      "Duration of remote document pushes",
			Buckets:   prom.DefBuckets,
		})
		pr.outboxPending = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "1 while a failed save is waiting to be resent",
		})
		pr.outboxResends = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_resends_total",
			Help:      "Outbox resend attempts by result",
		}, []string{"result"})
		pr.expired = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "catalogues_expired_total",
			Help:      "Catalogues moved to the archive by the expiration sweep",
		})
		pr.cacheWrites = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Local cache writes by result",
		}, []string{"result"})
		pr.slides = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "playback_slides_total",
			Help:      "Slides shown by kind and outcome",
		}, []string{"kind", "outcome"})
		pr.playbackState = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_state",
			Help:      "Current idle playback state (1 for the active state)",
		}, []string{"state"})
		pr.heartbeats = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat cycles by result",
		}, []string{"result"})
		pr.signalLevel = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "signal_level",
			Help:      "Coarse network signal estimate (0 offline to 4 excellent)",
		})
		reg.MustRegister(pr.fetches, pr.fetchDuration, pr.saves, pr.saveDuration, pr.outboxPending,
			pr.outboxResends, pr.expired, pr.cacheWrites, pr.slides, pr.playbackState, pr.heartbeats, pr.signalLevel)
	})
	return pr
}

func (p *PrometheusRecorder) IncFetch(outcome FetchOutcome) {
	if p == nil || p.fetches == nil {
		return
	}
	p.fetches.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveFetchDuration(d time.Duration) {
	if p == nil || p.fetchDuration == nil {
		return
	}
	p.fetchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSave(result ResultLabel) {
	if p == nil || p.saves == nil {
		return
	}
	p.saves.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveSaveDuration(d time.Duration) {
	if p == nil || p.saveDuration == nil {
		return
	}
	p.saveDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetOutboxPending(pending bool) {
	if p == nil || p.outboxPending == nil {
		return
	}
	v := 0.0
	if pending {
		v = 1
	}
	p.outboxPending.Set(v)
}

func (p *PrometheusRecorder) IncOutboxResend(result ResultLabel) {
	if p == nil || p.outboxResends == nil {
		return
	}
	p.outboxResends.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncExpired(n int) {
	if p == nil || p.expired == nil || n <= 0 {
		return
	}
	p.expired.Add(float64(n))
}

func (p *PrometheusRecorder) IncCacheWrite(result ResultLabel) {
	if p == nil || p.cacheWrites == nil {
		return
	}
	p.cacheWrites.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncSlide(kind string, outcome SlideOutcome) {
	if p == nil || p.slides == nil {
		return
	}
	p.slides.WithLabelValues(kind, string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetPlaybackState(state string) {
	if p == nil || p.playbackState == nil {
		return
	}
	for _, s := range playbackStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.playbackState.WithLabelValues(s).Set(v)
	}
}

func (p *PrometheusRecorder) IncHeartbeat(result ResultLabel) {
	if p == nil || p.heartbeats == nil {
		return
	}
	p.heartbeats.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetSignalLevel(level int) {
	if p == nil || p.signalLevel == nil {
		return
	}
	p.signalLevel.Set(float64(level))
}
