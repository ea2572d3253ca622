package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)

	require.NoError(t, cfg.Load())
	require.FileExists(t, path)

	snap := cfg.Snapshot()
	assert.Equal(t, DefaultWebPort, snap.WebPort)
	assert.Equal(t, DefaultWebUsername, snap.WebUser)
	assert.Equal(t, DefaultBackendURL, snap.BackendURL)
	assert.Equal(t, DefaultDeviceWarningText, snap.DeviceWarningText)
	assert.False(t, snap.Archive.IsConfigured())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	partial := `{"system": {"port": 9090}, "backend": {"base_url": "http://backend:8000/v1"}}`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.Equal(t, 9090, snap.WebPort)
	assert.Equal(t, "http://backend:8000/v1", snap.BackendURL)
	assert.Equal(t, DefaultWebUsername, snap.WebUser)
	assert.Equal(t, DefaultDeviceWarningText, snap.DeviceWarningText)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"system": {"port": 99999}}`), 0o600))

	cfg := New(path)
	assert.ErrorContains(t, cfg.Load(), "invalid port")
}

func TestLoadRejectsInvalidBackendURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend": {"base_url": "::not a url::"}}`), 0o600))

	cfg := New(path)
	assert.ErrorContains(t, cfg.Load(), "invalid backend base_url")
}

func TestSavedFileOmitsSecretsWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, string(raw["backend"]), "client_secret")
}

func TestSnapshotCarriesArchiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"archive": {"bucket": "clips", "access_key_id": "k", "secret_access_key": "s"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.True(t, snap.Archive.IsConfigured())
	assert.Equal(t, "clips", snap.Archive.Bucket)
}
