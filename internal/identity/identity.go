// Package identity persists the device identity (id, display name, class)
// in a small TOML file next to the kiosk's configuration.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"

	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/model"
)

// Identity is the locally persisted device identity.
type Identity struct {
	ID           string           `toml:"id" json:"id"`
	Name         string           `toml:"name" json:"name"`
	DeviceType   model.DeviceType `toml:"device_type" json:"deviceType"`
	AssignedZone string           `toml:"assigned_zone,omitempty" json:"assignedZone,omitempty"`
}

// Configured reports whether both id and name are present.
func (i Identity) Configured() bool {
	return strings.TrimSpace(i.ID) != "" && strings.TrimSpace(i.Name) != ""
}

// ValidDeviceType reports whether t is a known device class.
func ValidDeviceType(t model.DeviceType) bool {
	switch t {
	case model.DeviceKiosk, model.DeviceMobile, model.DeviceTV:
		return true
	default:
		return false
	}
}

// Store owns the identity file. It is safe for concurrent use.
type Store struct {
	path string

	mu      sync.RWMutex
	current Identity
}

// Open loads the identity at path. A missing file yields an unconfigured identity.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIdentity, "read device identity").
			WithContext("path", path).
			Build()
	}
	if err := toml.Unmarshal(data, &s.current); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIdentity, "parse device identity").
			WithContext("path", path).
			Build()
	}
	if s.current.DeviceType == "" {
		s.current.DeviceType = model.DeviceKiosk
	}
	return s, nil
}

// Path returns the identity file location.
func (s *Store) Path() string { return s.path }

// Get returns the current identity.
func (s *Store) Get() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Provision assigns a fresh device id with the given name and class and persists it.
func (s *Store) Provision(name string, deviceType model.DeviceType) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, ferrors.ValidationError("device name is required").Build()
	}
	if deviceType == "" {
		deviceType = model.DeviceKiosk
	}
	if !ValidDeviceType(deviceType) {
		return Identity{}, ferrors.ValidationError(fmt.Sprintf("unknown device type %q", deviceType)).Build()
	}
	id := Identity{ID: uuid.NewString(), Name: name, DeviceType: deviceType}
	if err := s.Set(id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Update applies fn to a copy of the identity and persists the result when it changed.
// It reports whether anything changed.
func (s *Store) Update(fn func(*Identity)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current
	fn(&next)
	if next == s.current {
		return false, nil
	}
	if err := s.write(next); err != nil {
		return false, err
	}
	s.current = next
	return true, nil
}

// Set replaces and persists the identity.
func (s *Store) Set(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(id); err != nil {
		return err
	}
	s.current = id
	return nil
}

// Forget clears the device id so the host re-enters provisioning. The name is kept as a hint.
func (s *Store) Forget() error {
	_, err := s.Update(func(i *Identity) { i.ID = "" })
	return err
}

func (s *Store) write(id Identity) error {
	if s.path == "" {
		return nil
	}
	data, err := toml.Marshal(id)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode device identity").Build()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIdentity, "create identity directory").Build()
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIdentity, "write device identity").Build()
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIdentity, "replace device identity").Build()
	}
	return nil
}
