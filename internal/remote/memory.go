package remote

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"git.home.luguber.info/inful/showroom/internal/model"
)

// MemoryStore is an in-process Store. It backs the "memory" remote backend and
// serves as the fake in tests, with hooks to inject failures and delays.
type MemoryStore struct {
	mu       sync.Mutex
	doc      []byte
	revision uint64
	fleet    map[string][]byte
	subs     map[int]memorySub
	nextSub  int
	closed   bool

	failWith  error
	fetchHook func()

	fetches int
	upserts int
}

type memorySub struct {
	tables []Table
	fn     func(Change)
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fleet: map[string][]byte{}, subs: map[int]memorySub{}}
}

func (m *MemoryStore) check() error {
	if m.closed {
		return ErrClosed
	}
	return m.failWith
}

// FetchDocument returns the stored row.
func (m *MemoryStore) FetchDocument(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	m.fetches++
	if err := m.check(); err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	if m.doc == nil {
		m.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	snap := Snapshot{Raw: slices.Clone(m.doc), Revision: m.revision}
	hook := m.fetchHook
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return snap, nil
}

// UpsertDocument replaces the row and notifies subscribers.
func (m *MemoryStore) UpsertDocument(_ context.Context, doc *model.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return m.PutRaw(raw)
}

// PutRaw stores a raw document row, as another client would.
func (m *MemoryStore) PutRaw(raw []byte) error {
	m.mu.Lock()
	m.upserts++
	if err := m.check(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.doc = slices.Clone(raw)
	m.revision++
	subs := m.subscribers(TableDocument)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(Change{Table: TableDocument, Key: "config"})
	}
	return nil
}

// FetchFleet returns every fleet row ordered by id.
func (m *MemoryStore) FetchFleet(_ context.Context) ([]model.FleetDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.fleet))
	for id := range m.fleet {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]model.FleetDevice, 0, len(ids))
	for _, id := range ids {
		d, err := DecodeFleetRow(m.fleet[id])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// FetchFleetRow returns one fleet row.
func (m *MemoryStore) FetchFleetRow(_ context.Context, deviceID string) (model.FleetDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return model.FleetDevice{}, err
	}
	raw, ok := m.fleet[deviceID]
	if !ok {
		return model.FleetDevice{}, ErrNotFound
	}
	return DecodeFleetRow(raw)
}

// UpsertFleetRow merges patch into the row, creating it when absent.
func (m *MemoryStore) UpsertFleetRow(_ context.Context, deviceID string, patch FleetPatch) error {
	m.mu.Lock()
	if err := m.check(); err != nil {
		m.mu.Unlock()
		return err
	}
	merged, err := MergeFleetRow(m.fleet[deviceID], deviceID, patch)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.fleet[deviceID] = merged
	subs := m.subscribers(TableFleet)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(Change{Table: TableFleet, Key: deviceID})
	}
	return nil
}

// PutFleetRow stores a full row, as an admin console would.
func (m *MemoryStore) PutFleetRow(d model.FleetDevice) {
	raw, _ := json.Marshal(d)
	m.mu.Lock()
	m.fleet[d.ID] = raw
	subs := m.subscribers(TableFleet)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(Change{Table: TableFleet, Key: d.ID})
	}
}

// DeleteFleetRow removes a device.
func (m *MemoryStore) DeleteFleetRow(deviceID string) {
	m.mu.Lock()
	delete(m.fleet, deviceID)
	m.mu.Unlock()
}

// Subscribe registers fn for changes on tables.
func (m *MemoryStore) Subscribe(ctx context.Context, tables []Table, fn func(Change)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = memorySub{tables: slices.Clone(tables), fn: fn}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return unsubscribe, nil
}

// subscribers must be called with mu held.
func (m *MemoryStore) subscribers(t Table) []func(Change) {
	var out []func(Change)
	for _, s := range m.subs {
		if Wants(s.tables, t) {
			out = append(out, s.fn)
		}
	}
	return out
}

// Close drops subscribers and fails later calls.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = map[int]memorySub{}
	return nil
}

// Stats returns the number of document fetches and upserts seen.
func (m *MemoryStore) Stats() (fetches, upserts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches, m.upserts
}

// SetFailure sets or clears the injected failure.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

// SetFetchHook installs fn to run inside FetchDocument after the row was read
// and before it is returned, simulating a slow response.
func (m *MemoryStore) SetFetchHook(fn func()) {
	m.mu.Lock()
	m.fetchHook = fn
	m.mu.Unlock()
}
