package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetrelay/internal/errors"
)

func setRequired(t *testing.T) {
	t.Setenv("AZURE_TENANT_ID", "tenant")
	t.Setenv("AZURE_CLIENT_ID", "client")
	t.Setenv("AZURE_CLIENT_SECRET", "secret")
	t.Setenv("ONEDRIVE_USER_EMAIL", "relay@example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "TIMSS", cfg.Graph.RootFolder)
	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.Graph.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Graph.ControlTimeout)
	assert.Equal(t, 120*time.Second, cfg.Graph.TransferTimeout)
	assert.Equal(t, StrategyUpload, cfg.Sync.Strategy)
	assert.Equal(t, ModeSync, cfg.Sync.Mode)
	assert.Equal(t, int64(10*1024*1024), cfg.Sync.ChunkSizeBytes)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 1, cfg.Sync.SubmitMaxRetries)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.AppendRetryDelay)
	assert.Equal(t, "excel_files", cfg.Sync.CacheDir)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Empty(t, cfg.Database.URL)
	assert.False(t, cfg.Profiling.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ONEDRIVE_ROOT_FOLDER", "/Exams/")
	t.Setenv("SYNC_STRATEGY", "TABLE")
	t.Setenv("SYNC_MODE", "async")
	t.Setenv("SYNC_CHUNK_SIZE_MB", "5")
	t.Setenv("SYNC_BASE_BACKOFF", "250ms")
	t.Setenv("PPROF_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Exams", cfg.Graph.RootFolder)
	assert.Equal(t, StrategyTable, cfg.Sync.Strategy)
	assert.Equal(t, ModeAsync, cfg.Sync.Mode)
	assert.Equal(t, int64(5*1024*1024), cfg.Sync.ChunkSizeBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.BaseBackoff)
	assert.True(t, cfg.Profiling.Enabled)
}

func TestLoadReportsMissingCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("AZURE_CLIENT_SECRET", "")
	t.Setenv("ONEDRIVE_USER_EMAIL", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
	assert.Contains(t, err.Error(), "AZURE_CLIENT_SECRET, ONEDRIVE_USER_EMAIL")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"strategy", "SYNC_STRATEGY", "ftp"},
		{"mode", "SYNC_MODE", "later"},
		{"retries", "SYNC_MAX_RETRIES", "0"},
		{"workers", "SYNC_BACKGROUND_WORKERS", "-1"},
		{"chunk", "SYNC_CHUNK_SIZE_MB", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.env, tt.val)

			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}
