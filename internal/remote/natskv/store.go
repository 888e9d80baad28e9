// Package natskv implements the remote store on NATS JetStream key-value
// buckets: one bucket holds the shared document under a fixed key, the other
// holds one fleet row per device id.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

// Options configures the NATS store.
type Options struct {
	URL            string
	DocumentBucket string
	FleetBucket    string
	DocumentKey    string
	Timeout        time.Duration
	ClientName     string
}

// Store is a remote.Store backed by JetStream KV.
type Store struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	docKV   jetstream.KeyValue
	fleetKV jetstream.KeyValue
	docKey  string
	timeout time.Duration
}

var _ remote.Store = (*Store)(nil)

// Open connects to NATS and creates the buckets when missing.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ClientName == "" {
		opts.ClientName = "showroom"
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &Store{conn: conn, js: js, docKey: opts.DocumentKey, timeout: opts.Timeout}
	if s.docKey == "" {
		s.docKey = "store_config"
	}

	initCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if s.docKV, err = s.bucket(initCtx, opts.DocumentBucket, "Showroom shared store document", 1); err != nil {
		conn.Close()
		return nil, err
	}
	if s.fleetKV, err = s.bucket(initCtx, opts.FleetBucket, "Showroom device fleet", 1); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("NATS remote store initialized",
		"url", opts.URL,
		"document_bucket", opts.DocumentBucket,
		"fleet_bucket", opts.FleetBucket)
	return s, nil
}

// bucket gets or creates a KV bucket.
func (s *Store) bucket(ctx context.Context, name, description string, history uint8) (jetstream.KeyValue, error) {
	kv, err := s.js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to open KV bucket %s: %w", name, err)
	}
	kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: description,
		History:     history,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket %s: %w", name, err)
	}
	slog.Info("Created KV bucket", "bucket", name)
	return kv, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// FetchDocument reads the document key.
func (s *Store) FetchDocument(ctx context.Context) (remote.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry, err := s.docKV.Get(ctx, s.docKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return remote.Snapshot{}, remote.ErrNotFound
		}
		return remote.Snapshot{}, fmt.Errorf("failed to get document: %w", err)
	}
	return remote.Snapshot{Raw: entry.Value(), Revision: entry.Revision()}, nil
}

// UpsertDocument puts the document key.
func (s *Store) UpsertDocument(ctx context.Context, doc *model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rev, err := s.docKV.Put(ctx, s.docKey, data)
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	slog.Debug("Document written", logfields.Backend("nats"), logfields.Revision(rev), logfields.Bytes(len(data)))
	return nil
}

// FetchFleet reads every fleet row.
func (s *Store) FetchFleet(ctx context.Context) ([]model.FleetDevice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	w, err := s.fleetKV.WatchAll(ctx, jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("failed to list fleet: %w", err)
	}
	defer func() { _ = w.Stop() }()

	var out []model.FleetDevice
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok || entry == nil {
				return out, nil
			}
			d, err := remote.DecodeFleetRow(entry.Value())
			if err != nil {
				slog.Warn("Skipping malformed fleet row", logfields.Key(entry.Key()), logfields.Error(err))
				continue
			}
			out = append(out, d)
		}
	}
}

// FetchFleetRow reads one device row.
func (s *Store) FetchFleetRow(ctx context.Context, deviceID string) (model.FleetDevice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry, err := s.fleetKV.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return model.FleetDevice{}, remote.ErrNotFound
		}
		return model.FleetDevice{}, fmt.Errorf("failed to get fleet row: %w", err)
	}
	return remote.DecodeFleetRow(entry.Value())
}

// UpsertFleetRow merges patch into the row with a compare-and-set on the
// revision, retrying once when another writer got there first.
func (s *Store) UpsertFleetRow(ctx context.Context, deviceID string, patch remote.FleetPatch) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var existing []byte
		var rev uint64
		entry, err := s.fleetKV.Get(ctx, deviceID)
		switch {
		case err == nil:
			existing, rev = entry.Value(), entry.Revision()
		case errors.Is(err, jetstream.ErrKeyNotFound):
		default:
			return fmt.Errorf("failed to get fleet row: %w", err)
		}

		merged, err := remote.MergeFleetRow(existing, deviceID, patch)
		if err != nil {
			return fmt.Errorf("failed to merge fleet row: %w", err)
		}
		if rev == 0 {
			_, lastErr = s.fleetKV.Create(ctx, deviceID, merged)
		} else {
			_, lastErr = s.fleetKV.Update(ctx, deviceID, merged, rev)
		}
		if lastErr == nil {
			return nil
		}
		slog.Debug("Fleet row write conflict", logfields.DeviceID(deviceID), logfields.Attempt(attempt+1), logfields.Error(lastErr))
	}
	return fmt.Errorf("failed to write fleet row: %w", lastErr)
}

// Subscribe watches the requested buckets for new revisions.
func (s *Store) Subscribe(ctx context.Context, tables []remote.Table, fn func(remote.Change)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	watch := func(kv jetstream.KeyValue, table remote.Table) error {
		w, err := kv.WatchAll(ctx, jetstream.UpdatesOnly())
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", table, err)
		}
		go func() {
			defer func() { _ = w.Stop() }()
			for {
				select {
				case <-ctx.Done():
					return
				case entry, ok := <-w.Updates():
					if !ok {
						return
					}
					if entry == nil {
						continue
					}
					fn(remote.Change{Table: table, Key: entry.Key()})
				}
			}
		}()
		return nil
	}

	if remote.Wants(tables, remote.TableDocument) {
		if err := watch(s.docKV, remote.TableDocument); err != nil {
			cancel()
			return nil, err
		}
	}
	if remote.Wants(tables, remote.TableFleet) {
		if err := watch(s.fleetKV, remote.TableFleet); err != nil {
			cancel()
			return nil, err
		}
	}
	return cancel, nil
}

// Close drains the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
