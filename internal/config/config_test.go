package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should use defaults when file is missing", func(t *testing.T) {
		// when
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		// then
		require.NoError(t, err)
		assert.Equal(t, 8181, cfg.Port)
		assert.Equal(t, "treasury", cfg.Database.Schema)
		assert.Equal(t, AuditSinkPostgres, cfg.Audit.Sink)
		assert.Equal(t, 10*time.Second, cfg.Database.LockTimeout)
	})

	t.Run("should override defaults from file and environment", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		content := "db:\n  host: db.internal\n  port: 6432\n  locktimeout: 2s\naudit:\n  sink: log\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		t.Setenv("TREASURY_DB_NAME", "treasury_test")

		// when
		cfg, err := Load(path)

		// then
		require.NoError(t, err)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 6432, cfg.Database.Port)
		assert.Equal(t, "treasury_test", cfg.Database.Name)
		assert.Equal(t, 2*time.Second, cfg.Database.LockTimeout)
		assert.Equal(t, AuditSinkLog, cfg.Audit.Sink)
	})
}
