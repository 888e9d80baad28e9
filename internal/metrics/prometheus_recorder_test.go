package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncFetch(FetchApplied)
	pr.IncFetch(FetchGuarded)
	pr.ObserveFetchDuration(150 * time.Millisecond)
	pr.IncSave(ResultSuccess)
	pr.SetOutboxPending(true)
	pr.IncExpired(2)
	pr.IncSlide("video", SlideWatchdog)
	pr.SetPlaybackState("playing")
	pr.SetSignalLevel(3)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]bool{}
	for _, mf := range mfs {
		byName[mf.GetName()] = true
	}
	require.True(t, byName["showroom_document_fetches_total"])
	require.True(t, byName["showroom_playback_state"])
	require.True(t, byName["showroom_catalogues_expired_total"])
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	require.NotPanics(t, func() {
		pr.IncFetch(FetchFailed)
		pr.SetPlaybackState("active")
	})
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncHeartbeat(ResultSuccess)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "showroom_heartbeats_total")
}
