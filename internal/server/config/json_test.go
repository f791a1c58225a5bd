package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http": "www.example:9000",
		"database_dsn":       "postgres://example/letters",
		"max_title_bytes":    64,
		"max_content_bytes":  1024,
		"max_user_id_bytes":  32,
		"reconcile_interval": "2m",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "postgres://example/letters", cfg.DatabaseDSN)
		assert.Equal(t, 64, cfg.MaxTitleBytes)
		assert.Equal(t, 1024, cfg.MaxContentBytes)
		assert.Equal(t, 32, cfg.MaxUserIDBytes)
		assert.Equal(t, 2*time.Minute, cfg.ReconcileInterval)
	})

	t.Run("no config flag leaves values untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddrHTTP:  "defaults:1234",
			DatabaseDSN:       "dsn",
			MaxTitleBytes:     1,
			MaxContentBytes:   2,
			MaxUserIDBytes:    3,
			ReconcileInterval: time.Minute,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "dsn", cfg.DatabaseDSN)
		assert.Equal(t, 1, cfg.MaxTitleBytes)
		assert.Equal(t, 2, cfg.MaxContentBytes)
		assert.Equal(t, 3, cfg.MaxUserIDBytes)
		assert.Equal(t, time.Minute, cfg.ReconcileInterval)
	})

	t.Run("panics on missing file", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "absent.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
