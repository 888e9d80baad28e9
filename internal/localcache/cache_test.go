package localcache

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, maxBytes int64) (*Cache, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	c, err := Open(":memory:", maxBytes, WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestGetSet(t *testing.T) {
	c, _ := openTest(t, 0)
	ctx := t.Context()

	_, ok, err := c.Get(ctx, DocumentKey)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, DocumentKey, []byte(`{"a":1}`)))
	require.NoError(t, c.Set(ctx, DocumentKey, []byte(`{"a":2}`)))

	v, ok, err := c.Get(ctx, DocumentKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"a":2}`, string(v))
}

func TestQuota(t *testing.T) {
	c, _ := openTest(t, 100)
	ctx := t.Context()

	require.NoError(t, c.Set(ctx, "a", bytes.Repeat([]byte("x"), 60)))
	// Replacing a key only counts the new value.
	require.NoError(t, c.Set(ctx, "a", bytes.Repeat([]byte("y"), 90)))

	err := c.Set(ctx, "b", bytes.Repeat([]byte("z"), 20))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrQuotaExceeded))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, v, 90)

	used, err := c.Usage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(90), used)
}

func TestOutboxSingleSlot(t *testing.T) {
	c, clock := openTest(t, 0)
	ctx := t.Context()

	p, err := c.Pending(ctx, SlotDocument)
	require.NoError(t, err)
	require.Nil(t, p)

	require.NoError(t, c.PutPending(ctx, SlotDocument, "save-1", []byte("one")))
	clock.Advance(time.Second)
	require.NoError(t, c.MarkAttempt(ctx, SlotDocument, "save-1", errors.New("offline")))

	p, err = c.Pending(ctx, SlotDocument)
	require.NoError(t, err)
	require.Equal(t, "save-1", p.ID)
	require.Equal(t, 1, p.Attempts)
	require.Equal(t, "offline", p.LastError)
	require.Equal(t, clock.Now().UnixMilli(), p.LastAttemptAt.UnixMilli())

	// A newer save replaces the queued one and resets its attempts.
	require.NoError(t, c.PutPending(ctx, SlotDocument, "save-2", []byte("two")))
	cleared, err := c.ClearPending(ctx, SlotDocument, "save-1")
	require.NoError(t, err)
	require.False(t, cleared)

	p, err = c.Pending(ctx, SlotDocument)
	require.NoError(t, err)
	require.Equal(t, "save-2", p.ID)
	require.Equal(t, []byte("two"), p.Payload)
	require.Zero(t, p.Attempts)

	cleared, err = c.ClearPending(ctx, SlotDocument, "save-2")
	require.NoError(t, err)
	require.True(t, cleared)
	p, err = c.Pending(ctx, SlotDocument)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestJournalTrim(t *testing.T) {
	c, _ := openTest(t, 0)
	ctx := t.Context()

	for i := range journalLimit + 25 {
		require.NoError(t, c.Append(ctx, "fetch", fmt.Sprintf("run %d", i)))
	}

	all, err := c.Recent(ctx, journalLimit*2)
	require.NoError(t, err)
	require.Len(t, all, journalLimit)
	require.Equal(t, fmt.Sprintf("run %d", journalLimit+24), all[0].Detail)

	last, err := c.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, last, 3)
}

func TestOpenPersists(t *testing.T) {
	path := t.TempDir() + "/cache.db"
	ctx := t.Context()

	c, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, DocumentKey, []byte("kept")))
	require.NoError(t, c.Close())

	c, err = Open(path, 0)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	v, ok, err := c.Get(ctx, DocumentKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "kept", string(v))
}
