package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DQ_SERVER_PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, SourceGraph, cfg.Source.Kind)
	assert.Equal(t, 5, cfg.Source.Graph.MaxSites)
	assert.Equal(t, 10, cfg.Source.Graph.MaxFilesPerSite)
	assert.Equal(t, []string{".txt", ".md", ".docx", ".pdf"}, cfg.Source.Graph.Extensions)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 100, cfg.Kafka.BatchSize)
	assert.Equal(t, time.Second, cfg.Kafka.FlushInterval)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9000
source:
  kind: file
  fetchTimeout: 10s
  file:
    path: docs.yaml
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("PORT", "")
	t.Setenv("DQ_SERVER_PORT", "")
	t.Setenv("DQ_LOGGING_FORMAT", "text")
	t.Setenv("DQ_SERVER_ALLOW_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, SourceFile, cfg.Source.Kind)
	assert.Equal(t, 10*time.Second, cfg.Source.FetchTimeout)
	assert.Equal(t, "docs.yaml", cfg.Source.File.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)
}

func TestPortEnvPrecedence(t *testing.T) {
	t.Setenv("DQ_SERVER_PORT", "7000")
	t.Setenv("PORT", "7001")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestAzureCredentialsFromEnv(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AZURE_TENANT_ID", "tenant")
	t.Setenv("AZURE_CLIENT_ID", "client")
	t.Setenv("AZURE_CLIENT_SECRET", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Source.Graph.HasCredentials())
	assert.Equal(t, "https://login.microsoftonline.com/tenant/oauth2/v2.0/token", cfg.Source.Graph.TokenURL())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown source", "source:\n  kind: ftp\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"zero results", "search:\n  maxResults: 0\n"},
		{"kafka without brokers", "kafka:\n  enabled: true\n  brokers: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PORT", "")
			t.Setenv("DQ_SERVER_PORT", "")
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
