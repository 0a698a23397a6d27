package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "pubsub://dispatchd/", cfg.ServiceOwnerURI)
	assert.Equal(t, log.InfoLevel, cfg.Log.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatchd.yaml")
	doc := `
service_owner_uri: pubsub://example/
worker_concurrency: 16
retry_interval: 30s
queue_root_path: /var/lib/dispatchd/queues
log:
  level: debug
  json_output: false
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pubsub://example/", cfg.ServiceOwnerURI)
	assert.Equal(t, 16, cfg.WorkerConcurrency)
	assert.Equal(t, 30*time.Second, cfg.RetryInterval)
	assert.Equal(t, "/var/lib/dispatchd/queues", cfg.QueueRootPath)
	assert.Equal(t, log.DebugLevel, cfg.Log.Level)
	assert.False(t, cfg.Log.JSONOutput)

	// Fields the file omitted keep their Default() value.
	assert.Equal(t, "http://localhost:8080/events", cfg.PublishEndpoint)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatchd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_concurrency: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := Default()
	cfg.ServiceOwnerURI = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.WorkerConcurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.QueueRootPath = ""
	assert.Error(t, cfg.Validate())
}
