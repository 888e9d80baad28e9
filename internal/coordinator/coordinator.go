// Package coordinator owns the single authoritative in-memory document and
// arbitrates between local saves and remote fetches.
//
// A save takes the saving lock and stamps the local write time before the
// optimistic replace. Fetches are skipped while the lock is held or while the
// guard window since the last local write is open, and a fetched result is
// discarded if either condition trips while the remote call was in flight.
// The lock is released a grace period after the remote push resolves, and the
// guard window is measured from the later of the save start and that release.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/expiry"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/localcache"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
	"git.home.luguber.info/inful/showroom/internal/retry"
)

const (
	DefaultGuardWindow    = 5 * time.Second
	DefaultLockGrace      = 2 * time.Second
	DefaultChangeDebounce = time.Second
)

// Cache is the local persistence the coordinator needs. *localcache.Cache implements it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	PutPending(ctx context.Context, slot, id string, payload []byte) error
	Pending(ctx context.Context, slot string) (*localcache.PendingSave, error)
	MarkAttempt(ctx context.Context, slot, id string, cause error) error
	ClearPending(ctx context.Context, slot, id string) (bool, error)
	Append(ctx context.Context, kind, detail string) error
}

// Options configures a Coordinator. Zero durations take the package defaults.
type Options struct {
	Remote         remote.Store
	Cache          Cache
	Bus            *events.Bus
	Clock          clockwork.Clock
	Recorder       metrics.Recorder
	GuardWindow    time.Duration
	LockGrace      time.Duration
	ChangeDebounce time.Duration
	Retention      expiry.Retention
	Retry          retry.Policy
}

// Coordinator is the SyncCoordinator.
type Coordinator struct {
	remote   remote.Store
	cache    Cache
	bus      *events.Bus
	clock    clockwork.Clock
	recorder metrics.Recorder
	sweeper  *expiry.Sweeper
	retry    retry.Policy

	guardWindow    time.Duration
	lockGrace      time.Duration
	changeDebounce time.Duration

	mu               sync.Mutex
	doc              *model.Document
	revision         uint64
	source           events.DocumentSource
	savesInFlight    int
	saveSeq          uint64
	resends          uint64
	lockUntil        time.Time
	lastLocalWriteAt time.Time
	lastSyncAt       time.Time
	status           events.SyncStatus

	// pushMu serializes document writes to the cache and the remote row.
	// saveSeq and resends are bumped before it is taken, so a holder can tell
	// whether a newer local write is waiting.
	pushMu sync.Mutex

	outboxMu     sync.Mutex
	pendingID    string
	pendingSeq   uint64
	pendingFails int
	nextResendAt time.Time
}

// New creates a Coordinator. Remote and Cache are required; Init must run
// before the document is read.
func New(opts Options) (*Coordinator, error) {
	if opts.Remote == nil {
		return nil, ferrors.ValidationError("remote store is required").Build()
	}
	if opts.Cache == nil {
		return nil, ferrors.ValidationError("local cache is required").Build()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.GuardWindow == 0 {
		opts.GuardWindow = DefaultGuardWindow
	}
	if opts.LockGrace == 0 {
		opts.LockGrace = DefaultLockGrace
	}
	if opts.ChangeDebounce == 0 {
		opts.ChangeDebounce = DefaultChangeDebounce
	}
	if opts.Retry.Validate() != nil {
		opts.Retry = retry.DefaultPolicy()
	}

	return &Coordinator{
		remote:         opts.Remote,
		cache:          opts.Cache,
		bus:            opts.Bus,
		clock:          opts.Clock,
		recorder:       opts.Recorder,
		sweeper:        expiry.NewSweeper(opts.Remote, opts.Retention, opts.Recorder),
		retry:          opts.Retry,
		guardWindow:    opts.GuardWindow,
		lockGrace:      opts.LockGrace,
		changeDebounce: opts.ChangeDebounce,
		status:         events.SyncStatus{State: events.SyncIdle, At: opts.Clock.Now()},
	}, nil
}

// Document returns the current document. It is shared and must not be modified;
// pass a modified Clone to Save instead. Nil before Init.
func (c *Coordinator) Document() *model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Snapshot describes the coordinator state for diagnostics.
type Snapshot struct {
	Source           events.DocumentSource `json:"source"`
	Revision         uint64                `json:"revision"`
	Locked           bool                  `json:"locked"`
	LastLocalWriteAt time.Time             `json:"lastLocalWriteAt"`
	LastSyncAt       time.Time             `json:"lastSyncAt"`
	OutboxPending    bool                  `json:"outboxPending"`
	Status           events.SyncStatus     `json:"status"`
}

// Snapshot returns the current coordinator state.
func (c *Coordinator) Snapshot() Snapshot {
	pending := c.hasPending()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Source:           c.source,
		Revision:         c.revision,
		Locked:           c.lockedLocked(c.clock.Now()),
		LastLocalWriteAt: c.lastLocalWriteAt,
		LastSyncAt:       c.lastSyncAt,
		OutboxPending:    pending,
		Status:           c.status,
	}
}

// Status returns the last save status.
func (c *Coordinator) Status() events.SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastSync returns when a remote document was last applied.
func (c *Coordinator) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSyncAt
}

// Locked reports whether the saving lock is held.
func (c *Coordinator) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockedLocked(c.clock.Now())
}

func (c *Coordinator) lockedLocked(now time.Time) bool {
	return c.savesInFlight > 0 || now.Before(c.lockUntil)
}

// guardedLocked reports whether the guard window since the last local write is open.
func (c *Coordinator) guardedLocked(now time.Time) bool {
	ref := c.lastLocalWriteAt
	if c.lockUntil.After(ref) {
		ref = c.lockUntil
	}
	if ref.IsZero() {
		return false
	}
	return now.Sub(ref) < c.guardWindow
}

func (c *Coordinator) setStatus(state events.SyncState, progress int, err error) {
	st := events.SyncStatus{State: state, Progress: progress, At: c.clock.Now()}
	if err != nil {
		st.Error = err.Error()
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
	c.bus.Offer(st)
}

func (c *Coordinator) replaced(source events.DocumentSource, revision uint64) {
	c.bus.Offer(events.DocumentReplaced{Source: source, Revision: revision, At: c.clock.Now()})
}

func (c *Coordinator) journal(ctx context.Context, kind, detail string) {
	if err := c.cache.Append(ctx, kind, detail); err != nil {
		slog.Debug("Sync journal append failed", logfields.Error(err))
	}
}

// newSaveID returns an id for an outbox entry.
func newSaveID() string {
	return uuid.NewString()
}
