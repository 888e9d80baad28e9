// Package remote defines the contract of the shared document store and the
// in-process implementation used offline and in tests. Network backends live
// in the natskv and postgres subpackages.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"

	"git.home.luguber.info/inful/showroom/internal/model"
)

// Table names a change-notification source.
type Table string

const (
	TableDocument Table = "store_config"
	TableFleet    Table = "fleet"
)

var (
	// ErrNotFound is returned when the document row or a fleet row does not exist.
	ErrNotFound = errors.New("remote: not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("remote: store closed")
)

// Snapshot is a fetched document row before decoding.
type Snapshot struct {
	Raw      []byte
	Revision uint64
}

// Change is a push notification for a row in one of the tables.
type Change struct {
	Table Table
	Key   string
}

// Store is the remote document store: a singleton document row plus a
// fleet table with one row per device.
type Store interface {
	FetchDocument(ctx context.Context) (Snapshot, error)
	// UpsertDocument writes the shared row. Callers pass a document without fleet.
	UpsertDocument(ctx context.Context, doc *model.Document) error
	FetchFleet(ctx context.Context) ([]model.FleetDevice, error)
	FetchFleetRow(ctx context.Context, deviceID string) (model.FleetDevice, error)
	UpsertFleetRow(ctx context.Context, deviceID string, patch FleetPatch) error
	// Subscribe delivers changes for the given tables until the returned
	// function is called or ctx ends. fn runs on a backend goroutine.
	Subscribe(ctx context.Context, tables []Table, fn func(Change)) (func(), error)
	Close() error
}

// FleetPatch carries the fields of a fleet row to change. Nil fields are left alone.
type FleetPatch struct {
	Name             *string           `json:"name,omitempty"`
	DeviceType       *model.DeviceType `json:"deviceType,omitempty"`
	AssignedZone     *string           `json:"assignedZone,omitempty"`
	Status           *string           `json:"status,omitempty"`
	LastSeen         *time.Time        `json:"lastSeen,omitempty"`
	SignalStrength   *int              `json:"signalStrength,omitempty"`
	ConnectionType   *string           `json:"connectionType,omitempty"`
	Version          *string           `json:"version,omitempty"`
	RestartRequested *bool             `json:"restartRequested,omitempty"`
	RestartAckID     *string           `json:"restartAckId,omitempty"`
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

// JSON encodes only the set fields.
func (p FleetPatch) JSON() ([]byte, error) {
	return json.Marshal(p)
}

// MergeFleetRow applies patch to an existing JSON row (nil for a new row)
// and stamps id. Unknown fields in the existing row are preserved.
func MergeFleetRow(existing []byte, deviceID string, patch FleetPatch) ([]byte, error) {
	row := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &row); err != nil {
			return nil, err
		}
	}
	raw, err := patch.JSON()
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	maps.Copy(row, fields)
	row["id"] = deviceID
	return json.Marshal(row)
}

// DecodeFleetRow parses a stored fleet row.
func DecodeFleetRow(raw []byte) (model.FleetDevice, error) {
	var d model.FleetDevice
	err := json.Unmarshal(raw, &d)
	return d, err
}

// Wants reports whether t is in tables.
func Wants(tables []Table, t Table) bool {
	for _, x := range tables {
		if x == t {
			return true
		}
	}
	return false
}
