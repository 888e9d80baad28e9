package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/showroom/internal/model"
)

func TestOpenMissingIsUnconfigured(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "identity.toml"))
	require.NoError(t, err)
	require.False(t, s.Get().Configured())
}

func TestProvisionPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "identity.toml")
	s, err := Open(path)
	require.NoError(t, err)

	id, err := s.Provision("  Front desk ", model.DeviceTV)
	require.NoError(t, err)
	require.True(t, id.Configured())
	require.Equal(t, "Front desk", id.Name)
	require.Len(t, id.ID, 36)

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, id, reopened.Get())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "device_type")
	require.Contains(t, string(data), "tv")
}

func TestProvisionValidates(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "identity.toml"))
	require.NoError(t, err)

	_, err = s.Provision("", model.DeviceKiosk)
	require.Error(t, err)
	_, err = s.Provision("Lobby", "fridge")
	require.Error(t, err)

	id, err := s.Provision("Lobby", "")
	require.NoError(t, err)
	require.Equal(t, model.DeviceKiosk, id.DeviceType)
}

func TestUpdateReportsChange(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "identity.toml"))
	require.NoError(t, err)
	_, err = s.Provision("Lobby", model.DeviceKiosk)
	require.NoError(t, err)

	changed, err := s.Update(func(i *Identity) { i.Name = "Lobby" })
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = s.Update(func(i *Identity) { i.Name = "Entrance" })
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "Entrance", s.Get().Name)
}

func TestForgetClearsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Provision("Lobby", model.DeviceKiosk)
	require.NoError(t, err)

	require.NoError(t, s.Forget())
	require.False(t, s.Get().Configured())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Empty(t, reopened.Get().ID)
	require.Equal(t, "Lobby", reopened.Get().Name)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	require.NoError(t, os.WriteFile(path, []byte("id = [unterminated"), 0o600))
	_, err := Open(path)
	require.Error(t, err)
}
