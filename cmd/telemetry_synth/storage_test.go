package main

import (
	"path/filepath"
	"testing"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/storage"
	"github.com/OCAP2/telemetry-synth/internal/storage/memory"
	pgstorage "github.com/OCAP2/telemetry-synth/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/telemetry-synth/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/telemetry-synth/internal/storage/websocket"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStorageBackend_Memory(t *testing.T) {
	for _, typ := range []string{"memory", ""} {
		b, err := createStorageBackend(config.StorageConfig{
			Type:   typ,
			Memory: config.MemoryConfig{OutputDir: t.TempDir()},
		}, nil)
		require.NoError(t, err)
		assert.IsType(t, &memory.Backend{}, b)

		_, ok := b.(storage.Uploadable)
		assert.True(t, ok, "memory backend exports files for upload")
	}
}

func TestCreateStorageBackend_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synth.db")
	b, err := createStorageBackend(config.StorageConfig{
		Type:      "sqlite",
		BatchSize: 10,
		SQLite:    config.SQLiteConfig{Path: path},
	}, nil)
	require.NoError(t, err)
	require.IsType(t, &sqlitestorage.Backend{}, b)

	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.FileExists(t, path)
}

func TestCreateStorageBackend_Postgres(t *testing.T) {
	b, err := createStorageBackend(config.StorageConfig{Type: "postgres"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &pgstorage.Backend{}, b)
}

func TestCreateStorageBackend_WebSocket(t *testing.T) {
	viper.Set("api.serverUrl", "https://ingest.example.com/api/")
	t.Cleanup(func() { viper.Set("api.serverUrl", "") })

	b, err := createStorageBackend(config.StorageConfig{Type: "websocket"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &wsstorage.Backend{}, b)

	_, ok := b.(storage.Uploadable)
	assert.False(t, ok)
}

func TestCreateStorageBackend_Unknown(t *testing.T) {
	_, err := createStorageBackend(config.StorageConfig{Type: "mongo"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type: mongo")
}

func TestHttpToWS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:5000", "ws://localhost:5000"},
		{"https://ingest.example.com/api/", "wss://ingest.example.com/api"},
		{"ws://already", "ws://already"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, httpToWS(tt.in))
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	dir := t.TempDir()
	viper.Set("logsDir", filepath.Join(dir, "logs"))
	t.Cleanup(func() { viper.Reset() })

	assert.Equal(t, 2, run([]string{"-config", dir, "explode"}))
}

func TestReduce_Usage(t *testing.T) {
	assert.ErrorIs(t, reduce(nil), errUsage)
	assert.Error(t, reduce([]string{"often"}))
}

func TestGetJSON_Usage(t *testing.T) {
	assert.ErrorIs(t, getJSON(nil), errUsage)
}
