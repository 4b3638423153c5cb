package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECEIPT_PRINTER_CONFIG_DIR", dir)

	cfg, err := LoadOrCreateDefault()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.FileExists(t, filepath.Join(dir, "config.json"))

	cfg.ListenAddr = "127.0.0.1:9000"
	cfg.PollSeconds = 5
	require.NoError(t, Save(cfg))

	loaded, err := LoadOrCreateDefault()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", loaded.ListenAddr)
	assert.Equal(t, 5*time.Second, loaded.PollInterval())
}

func TestLoadNormalizes(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECEIPT_PRINTER_CONFIG_DIR", dir)

	raw := `{"listen_addr": ":1234", "poll_seconds": 0, "timeout_seconds": -1, "code_page": ""}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.ListenAddr)
	assert.Equal(t, 30, cfg.PollSeconds)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 2*time.Second, cfg.StatusTimeout())
	assert.Equal(t, "cp437", cfg.CodePage)
}

func TestListenAddrDefaultsToLoopback(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8099", Default().ListenAddr)

	dir := t.TempDir()
	t.Setenv("RECEIPT_PRINTER_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"listen_addr": ""}`), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8099", cfg.ListenAddr)
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECEIPT_PRINTER_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{"), 0o600))

	_, err := Load()
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RECEIPT_PRINTER_LISTEN_ADDR", " :7000 ")
	t.Setenv("RECEIPT_PRINTER_POLL_SEC", "15")
	t.Setenv("RECEIPT_PRINTER_TIMEOUT_SEC", "not a number")
	t.Setenv("RECEIPT_PRINTER_CODE_PAGE", "CP850")
	t.Setenv("RECEIPT_PRINTER_LOG_LEVEL", "DEBUG")

	cfg := Default()
	ApplyEnv(cfg)

	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, 15, cfg.PollSeconds)
	assert.Equal(t, 10, cfg.TimeoutSeconds)
	assert.Equal(t, "cp850", cfg.CodePage)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}
