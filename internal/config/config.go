package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "telemetry_synth.cfg.json"

// SimulationConfig holds the generator tunables.
type SimulationConfig struct {
	Seed      uint64
	Players   int
	Days      int
	StartDate time.Time
	Workers   int

	GridHalfExtent       float64
	HeartbeatInterval    time.Duration
	SessionMaxDuration   time.Duration
	MinPlayerDuration    time.Duration
	SessionStartWindow   time.Duration
	MinTeams             int
	MaxTeams             int
	MinPlayersPerTeam    int
	MaxPlayersPerTeam    int
	AvgSessionsPerPlayer float64
	MinSessionsPerPlayer float64
	MaxSessionsPerPlayer float64
	MinSpeed             int
	MaxSpeed             int
	MinKills             int
	MaxKills             int
	MinSeparation        float64
	PlacementMaxAttempts int
	Behaviors            []string
	Countries            []string
}

// MemoryConfig holds JSON file storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds in-memory SQLite backend settings
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebSocketConfig holds streaming backend settings
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type      string
	Truncate  bool
	BatchSize int
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// APIConfig holds the ingest API settings.
type APIConfig struct {
	ServerURL string
	APIKey    string
}

// MonitorConfig controls the run status monitor.
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// ArenaConfig anchors arena coordinates to the earth for the location column.
type ArenaConfig struct {
	AnchorLongitude float64
	AnchorLatitude  float64
	MetersPerUnit   float64
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay in
// effect when the file cannot be read.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./synthlogs")

	viper.SetDefault("simulation.seed", 42)
	viper.SetDefault("simulation.players", 1000)
	viper.SetDefault("simulation.days", 7)
	viper.SetDefault("simulation.startDate", "")
	viper.SetDefault("simulation.workers", 4)
	viper.SetDefault("simulation.gridHalfExtent", 100.0)
	viper.SetDefault("simulation.heartbeatIntervalSeconds", 30)
	viper.SetDefault("simulation.sessionMaxDurationSeconds", 1800)
	viper.SetDefault("simulation.minPlayerDurationSeconds", 120)
	viper.SetDefault("simulation.sessionStartWindowHours", 12)
	viper.SetDefault("simulation.minTeams", 1)
	viper.SetDefault("simulation.maxTeams", 5)
	viper.SetDefault("simulation.minPlayersPerTeam", 1)
	viper.SetDefault("simulation.maxPlayersPerTeam", 2)
	viper.SetDefault("simulation.avgSessionsPerPlayer", 10.0)
	viper.SetDefault("simulation.minSessionsPerPlayer", 5.0)
	viper.SetDefault("simulation.maxSessionsPerPlayer", 15.0)
	viper.SetDefault("simulation.minSpeed", 1)
	viper.SetDefault("simulation.maxSpeed", 3)
	viper.SetDefault("simulation.minKills", 10)
	viper.SetDefault("simulation.maxKills", 59)
	viper.SetDefault("simulation.minSeparation", 1.0)
	viper.SetDefault("simulation.placementMaxAttempts", 1000)
	viper.SetDefault("simulation.behaviors", []string{})
	viper.SetDefault("simulation.countries", []string{"US", "BR", "MX", "FR", "ES", "DE"})

	viper.SetDefault("api.serverUrl", "http://localhost:5000/api")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "telemetry")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "telemetry-synth")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.truncate", true)
	viper.SetDefault("storage.batchSize", 2000)
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", false)
	viper.SetDefault("storage.sqlite.path", "./telemetry_synth.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ingest")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "telemetry-synth")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "5s")
	viper.SetDefault("monitor.statusFile", "status.json")

	viper.SetDefault("arena.anchorLongitude", 13.4050)
	viper.SetDefault("arena.anchorLatitude", 52.5200)
	viper.SetDefault("arena.metersPerUnit", 10.0)

	viper.SetEnvPrefix("SYNTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetSimulationConfig returns the generator tunables. An empty or
// unparseable start date falls back to today, truncated to UTC midnight.
func GetSimulationConfig() SimulationConfig {
	start, err := time.Parse(time.DateOnly, viper.GetString("simulation.startDate"))
	if err != nil {
		y, m, d := time.Now().UTC().Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	seconds := func(key string) time.Duration {
		return time.Duration(viper.GetInt(key)) * time.Second
	}
	return SimulationConfig{
		Seed:                 viper.GetUint64("simulation.seed"),
		Players:              viper.GetInt("simulation.players"),
		Days:                 viper.GetInt("simulation.days"),
		StartDate:            start,
		Workers:              viper.GetInt("simulation.workers"),
		GridHalfExtent:       viper.GetFloat64("simulation.gridHalfExtent"),
		HeartbeatInterval:    seconds("simulation.heartbeatIntervalSeconds"),
		SessionMaxDuration:   seconds("simulation.sessionMaxDurationSeconds"),
		MinPlayerDuration:    seconds("simulation.minPlayerDurationSeconds"),
		SessionStartWindow:   time.Duration(viper.GetInt("simulation.sessionStartWindowHours")) * time.Hour,
		MinTeams:             viper.GetInt("simulation.minTeams"),
		MaxTeams:             viper.GetInt("simulation.maxTeams"),
		MinPlayersPerTeam:    viper.GetInt("simulation.minPlayersPerTeam"),
		MaxPlayersPerTeam:    viper.GetInt("simulation.maxPlayersPerTeam"),
		AvgSessionsPerPlayer: viper.GetFloat64("simulation.avgSessionsPerPlayer"),
		MinSessionsPerPlayer: viper.GetFloat64("simulation.minSessionsPerPlayer"),
		MaxSessionsPerPlayer: viper.GetFloat64("simulation.maxSessionsPerPlayer"),
		MinSpeed:             viper.GetInt("simulation.minSpeed"),
		MaxSpeed:             viper.GetInt("simulation.maxSpeed"),
		MinKills:             viper.GetInt("simulation.minKills"),
		MaxKills:             viper.GetInt("simulation.maxKills"),
		MinSeparation:        viper.GetFloat64("simulation.minSeparation"),
		PlacementMaxAttempts: viper.GetInt("simulation.placementMaxAttempts"),
		Behaviors:            viper.GetStringSlice("simulation.behaviors"),
		Countries:            viper.GetStringSlice("simulation.countries"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:      viper.GetString("storage.type"),
		Truncate:  viper.GetBool("storage.truncate"),
		BatchSize: viper.GetInt("storage.batchSize"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetAPIConfig returns the ingest API settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetArenaConfig returns the arena anchor settings.
func GetArenaConfig() ArenaConfig {
	return ArenaConfig{
		AnchorLongitude: viper.GetFloat64("arena.anchorLongitude"),
		AnchorLatitude:  viper.GetFloat64("arena.anchorLatitude"),
		MetersPerUnit:   viper.GetFloat64("arena.metersPerUnit"),
	}
}

// GetMonitorConfig returns the status monitor settings. A relative status
// file lives in logsDir.
func GetMonitorConfig() MonitorConfig {
	statusFile := viper.GetString("monitor.statusFile")
	if statusFile != "" && !filepath.IsAbs(statusFile) {
		statusFile = filepath.Join(viper.GetString("logsDir"), statusFile)
	}
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: statusFile,
	}
}
