package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/listing-watcher/internal/config"
	"github.com/donaldgifford/listing-watcher/internal/notify"
	"github.com/donaldgifford/listing-watcher/internal/store"
	"github.com/donaldgifford/listing-watcher/pkg/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	viper.Set("config", path)
	t.Cleanup(func() { viper.Set("config", "") })
	return path
}

func TestQueriesCommand(t *testing.T) {
	long := strings.Repeat("q", 120)
	writeConfig(t, `
ebay:
  app_id: app
  cert_id: cert
queries:
  - "rtx 3080"
  - "`+long+`"
`)

	var out bytes.Buffer
	c := queriesCommand()
	c.SetOut(&out)
	c.SetArgs(nil)
	require.NoError(t, c.Execute())

	assert.Contains(t, out.String(), "- rtx 3080\n")
	assert.Contains(t, out.String(), "warning: 120 chars")
	assert.Contains(t, out.String(), "2 queries, polled every 1m0s, snapshot records/memory")
}

func TestQueriesCommand_InvalidConfig(t *testing.T) {
	writeConfig(t, "queries: []\n")

	c := queriesCommand()
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	err := c.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestLoadConfig_LogOverrides(t *testing.T) {
	writeConfig(t, "ebay: {app_id: a, cert_id: c}\nqueries: [x]\n")
	viper.Set("log-level", "debug")
	viper.Set("log-format", "json")
	t.Cleanup(func() {
		viper.Set("log-level", "")
		viper.Set("log-format", "")
	})

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestNewNotifier(t *testing.T) {
	t.Parallel()

	off := newNotifier(&config.DiscordConfig{}, logger.Discard())
	assert.IsType(t, &notify.NoOpNotifier{}, off)

	on := newNotifier(&config.DiscordConfig{Enabled: true, WebhookURL: "http://example.invalid/hook"}, logger.Discard())
	assert.IsType(t, &notify.DiscordNotifier{}, on)
}

func TestNewSnapshot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      config.SnapshotConfig
		wantMode store.Mode
		wantType any
	}{
		{
			name:     "memory records",
			cfg:      config.SnapshotConfig{Mode: "records", Backend: config.BackendMemory},
			wantMode: store.ModeRecords,
			wantType: store.Nop{},
		},
		{
			name:     "file ids",
			cfg:      config.SnapshotConfig{Mode: "ids", Backend: config.BackendFile, Path: "seen.txt"},
			wantMode: store.ModeIDs,
			wantType: &store.FilePersister{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snap, err := newSnapshot(context.Background(), &tt.cfg, logger.Discard())
			require.NoError(t, err)
			defer snap.closeFn()

			assert.Equal(t, tt.wantMode, snap.store.Mode())
			assert.IsType(t, tt.wantType, snap.persister)
		})
	}
}

func TestNewSnapshot_BadMode(t *testing.T) {
	t.Parallel()

	_, err := newSnapshot(context.Background(), &config.SnapshotConfig{Mode: "everything"}, logger.Discard())
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := versionCommand()
	c.SetOut(&out)
	require.NoError(t, c.Execute())
	assert.Equal(t, "listing-watcher dev\n", out.String())
}

func TestShorten(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "abcd...", shorten("abcdefghij", 7))
	assert.Equal(t, "-", dash(""))
}

func TestPrintItems(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, printItems(&out, nil))
	assert.Contains(t, out.String(), "0 items")
}
