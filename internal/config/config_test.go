package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./synthlogs", viper.GetString("logsDir"))
	assert.Equal(t, "http://localhost:5000/api", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.apiKey"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "telemetry", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, "telemetry-synth", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	assert.Equal(t, 1000, GetSimulationConfig().Players)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("SYNTH_SIMULATION_PLAYERS", "25")

	require.NoError(t, Load(writeConfig(t, `{}`)))
	assert.Equal(t, 25, GetSimulationConfig().Players)
}

func TestGetSimulationConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetSimulationConfig()
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 1000, cfg.Players)
	assert.Equal(t, 100.0, cfg.GridHalfExtent)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Minute, cfg.SessionMaxDuration)
	assert.Equal(t, 2*time.Minute, cfg.MinPlayerDuration)
	assert.Equal(t, 12*time.Hour, cfg.SessionStartWindow)
	assert.Equal(t, 1, cfg.MinTeams)
	assert.Equal(t, 5, cfg.MaxTeams)
	assert.Equal(t, 1, cfg.MinPlayersPerTeam)
	assert.Equal(t, 2, cfg.MaxPlayersPerTeam)
	assert.Equal(t, 10.0, cfg.AvgSessionsPerPlayer)
	assert.Equal(t, 1.0, cfg.MinSeparation)
	assert.Equal(t, 1000, cfg.PlacementMaxAttempts)
	assert.Empty(t, cfg.Behaviors)
	assert.Equal(t, []string{"US", "BR", "MX", "FR", "ES", "DE"}, cfg.Countries)
	assert.Equal(t, 0, cfg.StartDate.Hour())
	assert.Equal(t, time.UTC, cfg.StartDate.Location())
}

func TestGetSimulationConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"simulation": {
			"seed": 7,
			"startDate": "2024-03-01",
			"gridHalfExtent": 50,
			"heartbeatIntervalSeconds": 10,
			"behaviors": ["harmonic", "perlin"]
		}
	}`)))

	cfg := GetSimulationConfig()
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, 50.0, cfg.GridHalfExtent)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, []string{"harmonic", "perlin"}, cfg.Behaviors)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, true, cfg.Truncate)
	assert.Equal(t, 2000, cfg.BatchSize)
	assert.Equal(t, "./sessions", cfg.Memory.OutputDir)
	assert.Equal(t, false, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": true },
			"sqlite": { "dumpInterval": "10m" },
			"websocket": { "url": "ws://ingest:9000/ws", "secret": "s3cret" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, true, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "ws://ingest:9000/ws", sc.WebSocket.URL)
	assert.Equal(t, "s3cret", sc.WebSocket.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "telemetry-synth", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxGraylogAPIArenaConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "org": "synth" },
		"graylog": { "enabled": true, "address": "gl:12201" },
		"api": { "apiKey": "k" },
		"arena": { "metersPerUnit": 2.5 }
	}`)))

	assert.Equal(t, InfluxConfig{
		Enabled: true, Host: "localhost", Port: "8086", Protocol: "http",
		Token: "supersecrettoken", Org: "synth",
	}, GetInfluxConfig())
	assert.Equal(t, GraylogConfig{Enabled: true, Address: "gl:12201"}, GetGraylogConfig())
	assert.Equal(t, "k", GetAPIConfig().APIKey)
	assert.Equal(t, 2.5, GetArenaConfig().MetersPerUnit)
	assert.Equal(t, "telemetry", GetDBConfig().Database)
}

func TestGetMonitorConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{ "logsDir": "/var/log/synth" }`)))

	mc := GetMonitorConfig()
	assert.True(t, mc.Enabled)
	assert.Equal(t, 5*time.Second, mc.Interval)
	assert.Equal(t, filepath.Join("/var/log/synth", "status.json"), mc.StatusFile)

	viper.Set("monitor.statusFile", "/tmp/abs.json")
	assert.Equal(t, "/tmp/abs.json", GetMonitorConfig().StatusFile)

	viper.Set("monitor.statusFile", "")
	assert.Equal(t, "", GetMonitorConfig().StatusFile)
}
