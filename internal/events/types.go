package events

import "time"

// SyncState is the state of the save status stream shown by the host UI.
type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncSyncing  SyncState = "syncing"
	SyncComplete SyncState = "complete"
	SyncError    SyncState = "error"
)

// SyncStatus is emitted around every save. Progress runs from 0 to 100.
type SyncStatus struct {
	State    SyncState `json:"state"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// DocumentSource says how the in-memory document was last replaced.
type DocumentSource string

const (
	SourceRemote  DocumentSource = "remote"
	SourceCache   DocumentSource = "cache"
	SourceDefault DocumentSource = "default"
	SourceSave    DocumentSource = "save"
	SourceReset   DocumentSource = "reset"
)

// DocumentReplaced is emitted after the coordinator swaps in a new document.
// Consumers re-read it through the coordinator.
type DocumentReplaced struct {
	Source   DocumentSource `json:"source"`
	Revision uint64         `json:"revision"`
	At       time.Time      `json:"at"`
}

// RemoteChanged is a push notification from the remote store.
type RemoteChanged struct {
	Table string
	Key   string
	At    time.Time
}

// DeviceDeleted is emitted when the heartbeat finds this device's fleet row gone.
type DeviceDeleted struct {
	DeviceID string
	At       time.Time
}

// RestartRequested is emitted after the heartbeat acknowledged a remote restart.
type RestartRequested struct {
	DeviceID  string
	RequestID string
	At        time.Time
}
