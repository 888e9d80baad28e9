// Package postgres implements the remote store on PostgreSQL: a singleton
// store_config row, a fleet table, and LISTEN/NOTIFY for change pushes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

// NotifyChannel is the LISTEN channel fed by the row triggers.
const NotifyChannel = "showroom_changes"

// Store is a remote.Store backed by PostgreSQL.
type Store struct {
	conn       *sql.DB
	dsn        string
	documentID string
}

var _ remote.Store = (*Store)(nil)

// Open connects, tunes the pool and applies the schema.
func Open(ctx context.Context, dsn, documentID string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if documentID == "" {
		documentID = "store_config"
	}
	s := &Store{conn: conn, dsn: dsn, documentID: documentID}
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS store_config (
		id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		revision BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS fleet (
		id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE OR REPLACE FUNCTION showroom_notify() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + NotifyChannel + `', TG_TABLE_NAME || ':' || COALESCE(NEW.id, OLD.id));
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS store_config_notify ON store_config;
	CREATE TRIGGER store_config_notify AFTER INSERT OR UPDATE OR DELETE ON store_config
		FOR EACH ROW EXECUTE FUNCTION showroom_notify();
	DROP TRIGGER IF EXISTS fleet_notify ON fleet;
	CREATE TRIGGER fleet_notify AFTER INSERT OR UPDATE OR DELETE ON fleet
		FOR EACH ROW EXECUTE FUNCTION showroom_notify();
	`
	_, err := s.conn.ExecContext(ctx, schema)
	return err
}

// FetchDocument reads the singleton row.
func (s *Store) FetchDocument(ctx context.Context) (remote.Snapshot, error) {
	var snap remote.Snapshot
	var rev int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT data, revision FROM store_config WHERE id = $1", s.documentID).
		Scan(&snap.Raw, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Snapshot{}, remote.ErrNotFound
	}
	if err != nil {
		return remote.Snapshot{}, fmt.Errorf("select store_config: %w", err)
	}
	snap.Revision = uint64(rev)
	return snap, nil
}

// UpsertDocument writes the singleton row and bumps its revision.
func (s *Store) UpsertDocument(ctx context.Context, doc *model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO store_config (id, data, revision, updated_at) VALUES ($1, $2::jsonb, 1, now())
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			revision = store_config.revision + 1,
			updated_at = now()`,
		s.documentID, string(data))
	if err != nil {
		return fmt.Errorf("upsert store_config: %w", err)
	}
	return nil
}

// FetchFleet reads every device row.
func (s *Store) FetchFleet(ctx context.Context) ([]model.FleetDevice, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, data FROM fleet ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("select fleet: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.FleetDevice
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		d, err := remote.DecodeFleetRow(raw)
		if err != nil {
			slog.Warn("Skipping malformed fleet row", logfields.DeviceID(id), logfields.Error(err))
			continue
		}
		d.ID = id
		out = append(out, d)
	}
	return out, rows.Err()
}

// FetchFleetRow reads one device row.
func (s *Store) FetchFleetRow(ctx context.Context, deviceID string) (model.FleetDevice, error) {
	var raw []byte
	err := s.conn.QueryRowContext(ctx, "SELECT data FROM fleet WHERE id = $1", deviceID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FleetDevice{}, remote.ErrNotFound
	}
	if err != nil {
		return model.FleetDevice{}, fmt.Errorf("select fleet row: %w", err)
	}
	d, err := remote.DecodeFleetRow(raw)
	if err != nil {
		return model.FleetDevice{}, err
	}
	d.ID = deviceID
	return d, nil
}

// UpsertFleetRow merges the patch server-side with jsonb concatenation, so
// concurrent writers touching different fields do not overwrite each other.
func (s *Store) UpsertFleetRow(ctx context.Context, deviceID string, patch remote.FleetPatch) error {
	data, err := remote.MergeFleetRow(nil, deviceID, patch)
	if err != nil {
		return fmt.Errorf("encode fleet patch: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO fleet (id, data, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET data = fleet.data || EXCLUDED.data, updated_at = now()`,
		deviceID, string(data))
	if err != nil {
		return fmt.Errorf("upsert fleet row: %w", err)
	}
	return nil
}

// Subscribe listens on NotifyChannel with a dedicated pq.Listener.
func (s *Store) Subscribe(ctx context.Context, tables []remote.Table, fn func(remote.Change)) (func(), error) {
	listener := pq.NewListener(s.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("Postgres listener event", "event", int(ev), logfields.Error(err))
		}
	})
	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer func() { _ = listener.Close() }()
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Reconnected: notifications may have been missed.
					for _, t := range tables {
						fn(remote.Change{Table: t})
					}
					continue
				}
				if c, ok := ParseNotification(n.Extra); ok && remote.Wants(tables, c.Table) {
					fn(c)
				}
			case <-ping.C:
				if err := listener.Ping(); err != nil {
					slog.Debug("Postgres listener ping failed", logfields.Error(err))
				}
			}
		}
	}()
	return cancel, nil
}

// ParseNotification decodes a "table:key" payload.
func ParseNotification(payload string) (remote.Change, bool) {
	table, key, ok := strings.Cut(payload, ":")
	if !ok {
		return remote.Change{}, false
	}
	switch remote.Table(table) {
	case remote.TableDocument, remote.TableFleet:
		return remote.Change{Table: remote.Table(table), Key: key}, true
	default:
		return remote.Change{}, false
	}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}
