package main

import (
	"fmt"
	"strings"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/geo"
	"github.com/OCAP2/telemetry-synth/internal/storage"
	"github.com/OCAP2/telemetry-synth/internal/storage/memory"
	pgstorage "github.com/OCAP2/telemetry-synth/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/telemetry-synth/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/telemetry-synth/internal/storage/websocket"
)

func createStorageBackend(storageCfg config.StorageConfig, anchor *geo.Anchor) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			DB:         config.GetDBConfig(),
			LogManager: SlogManager,
			Anchor:     anchor,
			BatchSize:  storageCfg.BatchSize,
			Truncate:   storageCfg.Truncate,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
			BatchSize:    storageCfg.BatchSize,
			Truncate:     storageCfg.Truncate,
		}, SlogManager, anchor)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "websocket":
		wsURL := storageCfg.WebSocket.URL
		if wsURL == "" {
			wsURL = httpToWS(config.GetAPIConfig().ServerURL) + "/ingest"
		}
		secret := storageCfg.WebSocket.Secret
		if secret == "" {
			secret = config.GetAPIConfig().APIKey
		}
		Logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: secret,
		}, Logger), nil

	case "memory", "":
		Logger.Info("Memory storage backend initialized", "dir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageCfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
