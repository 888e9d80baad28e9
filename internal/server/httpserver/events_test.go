package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/localcache"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/playback"
	"git.home.luguber.info/inful/showroom/internal/server/handlers"
)

type streamEvent struct {
	name string
	data string
}

// readEvent returns the next named event, skipping keep-alive comments.
func readEvent(t *testing.T, r *bufio.Reader) streamEvent {
	t.Helper()
	var evt streamEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if evt.name != "" {
				return evt
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			evt.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			evt.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, ctx context.Context, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp, bufio.NewReader(resp.Body)
}

func TestEventStream(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	s, err := New("127.0.0.1:0", Options{Docs: &stubDocs{doc: model.Default()}, Bus: bus, EventKeepAlive: 20 * time.Millisecond})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	_, r := openStream(t, ctx, ts.URL)

	// The initial status arrives after the stream has subscribed.
	first := readEvent(t, r)
	require.Equal(t, handlers.EventStatus, first.name)
	var status events.SyncStatus
	require.NoError(t, json.Unmarshal([]byte(first.data), &status))
	require.Equal(t, events.SyncComplete, status.State)

	require.Equal(t, 1, bus.Offer(events.SyncStatus{State: events.SyncSyncing, Progress: 60}))
	evt := readEvent(t, r)
	require.Equal(t, handlers.EventStatus, evt.name)
	require.NoError(t, json.Unmarshal([]byte(evt.data), &status))
	require.Equal(t, events.SyncSyncing, status.State)
	require.Equal(t, 60, status.Progress)

	require.Equal(t, 1, bus.Offer(playback.Command{Type: playback.CommandShow, Slot: playback.SlotA, Token: 4}))
	evt = readEvent(t, r)
	require.Equal(t, handlers.EventPlayback, evt.name)
	var cmd playback.Command
	require.NoError(t, json.Unmarshal([]byte(evt.data), &cmd))
	require.Equal(t, playback.CommandShow, cmd.Type)
	require.Equal(t, playback.SlotA, cmd.Slot)
	require.Equal(t, uint64(4), cmd.Token)

	require.Equal(t, 1, bus.Offer(events.DocumentReplaced{Source: events.SourceRemote, Revision: 9}))
	evt = readEvent(t, r)
	require.Equal(t, handlers.EventDocument, evt.name)
	require.JSONEq(t, `{"source":"remote","revision":9,"at":"0001-01-01T00:00:00Z"}`, evt.data)

	// Leaving the stream drops its subscriptions.
	cancel()
	require.Eventually(t, func() bool {
		return bus.Offer(events.SyncStatus{State: events.SyncIdle}) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamWithoutBus(t *testing.T) {
	h := newTestServer(t, &stubDocs{doc: model.Default()}, nil).Handler()
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/events", "", nil).Code)
}

func TestStopEndsEventStreams(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	s, err := New("127.0.0.1:0", Options{Docs: &stubDocs{doc: model.Default()}, Bus: bus})
	require.NoError(t, err)
	require.NoError(t, s.Start(t.Context()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	_, r := openStream(t, t.Context(), "http://"+s.Addr())
	require.Equal(t, handlers.EventStatus, readEvent(t, r).name)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = io.ReadAll(r)
	require.True(t, err == nil || errors.Is(err, io.ErrUnexpectedEOF), "unexpected read error: %v", err)
}

func TestStatusIncludesJournal(t *testing.T) {
	cache, err := localcache.Open(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	require.NoError(t, cache.Set(t.Context(), localcache.DocumentKey, []byte(`{"a":1}`)))
	require.NoError(t, cache.Append(t.Context(), "fetch", "remote"))
	require.NoError(t, cache.Append(t.Context(), "save", "ok"))

	s, err := New("127.0.0.1:0", Options{Docs: &stubDocs{doc: model.Default()}, Journal: cache})
	require.NoError(t, err)

	rec := do(t, s.Handler(), http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Journal    []localcache.Entry `json:"journal"`
		CacheBytes int64              `json:"cacheBytes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status.Journal, 2)
	require.Equal(t, "save", status.Journal[0].Kind)
	require.Equal(t, "fetch", status.Journal[1].Kind)
	require.Equal(t, int64(len(`{"a":1}`)), status.CacheBytes)
}
