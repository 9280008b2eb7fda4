package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/api"
	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/generator"
	"github.com/OCAP2/telemetry-synth/internal/geo"
	"github.com/OCAP2/telemetry-synth/internal/influx"
	"github.com/OCAP2/telemetry-synth/internal/logging"
	"github.com/OCAP2/telemetry-synth/internal/monitor"
	intOtel "github.com/OCAP2/telemetry-synth/internal/otel"
	"github.com/OCAP2/telemetry-synth/internal/storage"

	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "telemetry_synth"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = SlogManager.Logger()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// LogFile is the run's log file, nil when logging to stdout only
	LogFile *os.File

	RunStartTime time.Time = time.Now()
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	configDir := fs.String("config", ".", "directory containing "+config.FileName)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cleanup := setupLogging(*configDir)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := "generate"
	rest := fs.Args()
	if len(rest) > 0 {
		cmd = strings.ToLower(rest[0])
		rest = rest[1:]
	}

	var err error
	switch cmd {
	case "generate":
		err = generate(ctx)
	case "getjson":
		err = getJSON(rest)
	case "reduce":
		err = reduce(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q; expected generate, getjson or reduce\n", cmd)
		return 2
	}

	if err != nil {
		Logger.Error("Command failed", "command", cmd, "error", err)
		return 1
	}
	return 0
}

// setupLogging loads config, opens the run's log file and wires the slog
// fan-out: file, OTel and Graylog when enabled.
func setupLogging(configDir string) func() {
	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	level := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}

	logFilePath := logging.LogFilePath(logsDir, AppName, RunStartTime)
	var err error
	LogFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var w io.Writer = os.Stdout
		if LogFile != nil {
			w = LogFile
		}
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      w,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		}
	}

	var extra []slog.Handler
	var gelf *logging.GelfHandler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		gelf, err = logging.NewGelfHandler(gl.Address, AppName, level)
		if err != nil {
			Logger.Error("Failed to initialize Graylog handler", "error", err, "address", gl.Address)
		} else {
			extra = append(extra, gelf)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	SlogManager.Setup(file, level, otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logFilePath, "version", CurrentVersion, "buildDate", BuildDate)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := SlogManager.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
		if OTelProvider != nil {
			_ = OTelProvider.Shutdown(ctx)
		}
		if gelf != nil {
			_ = gelf.Close()
		}
		if LogFile != nil {
			_ = LogFile.Close()
		}
	}
}

// generate runs one full synthetic run into the configured backend.
func generate(ctx context.Context) error {
	sim := config.GetSimulationConfig()
	arena := config.GetArenaConfig()
	anchor, err := geo.NewAnchor(arena.AnchorLongitude, arena.AnchorLatitude, arena.MetersPerUnit)
	if err != nil {
		Logger.Warn("Invalid arena anchor, location column stays empty", "error", err)
		anchor = nil
	}

	backend, err := createStorageBackend(config.GetStorageConfig(), anchor)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	influxManager := connectInflux(ctx)
	if influxManager != nil {
		defer influxManager.Close()
	}

	deps := generator.Dependencies{
		Backend:    backend,
		LogManager: SlogManager,
		Influx:     influxManager,
	}
	if OTelProvider != nil {
		deps.Meter = OTelProvider.Meter(AppName)
	}
	gen, err := generator.New(sim, "", deps)
	if err != nil {
		return err
	}
	SlogManager.GetRunID = gen.RunID

	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		monDeps := monitor.Dependencies{
			LogManager: SlogManager,
			Source:     gen,
			StatusPath: monCfg.StatusFile,
			Interval:   monCfg.Interval,
		}
		if q, ok := backend.(monitor.QueueReporter); ok {
			monDeps.Queues = q
		}
		mon := monitor.NewService(monDeps)
		if err := mon.Start(); err != nil {
			Logger.Warn("Failed to start status monitor", "error", err)
		} else {
			defer mon.Stop()
		}
	}

	res, err := gen.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %d sessions, %d skipped, %d heartbeats over %d days in %s\n",
		res.RunID, res.Sessions, res.Skipped, res.Heartbeats, res.Days, res.Elapsed.Round(time.Millisecond))

	if up, ok := backend.(storage.Uploadable); ok {
		uploadExport(ctx, up)
	}
	return nil
}

func connectInflux(ctx context.Context) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	var w io.Writer = os.Stdout
	if LogFile != nil {
		w = LogFile
	}
	backupPath := filepath.Join(viper.GetString("logsDir"), fmt.Sprintf("%s_influx_%s.log.gz", AppName, RunStartTime.Format("20060102_150405")))
	m := influx.NewManager(cfg, logging.NewComponentLogger(w, "influx", viper.GetString("logLevel")), backupPath)
	if err := m.Connect(ctx); err != nil {
		Logger.Error("Failed to connect to InfluxDB", "error", err)
		return nil
	}
	return m
}

// uploadExport sends the run's session documents and manifest to the ingest
// API when one is configured. Cancelling ctx abandons the upload.
func uploadExport(ctx context.Context, up storage.Uploadable) {
	apiCfg := config.GetAPIConfig()
	path := up.GetExportedFilePath()
	if apiCfg.ServerURL == "" || apiCfg.APIKey == "" || path == "" {
		return
	}

	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("Ingest API not reachable, skipping upload", "error", err)
		return
	}
	sessions := up.GetSessionFilePaths()
	if err := client.UploadRun(ctx, api.RunUpload{
		Manifest: path,
		Sessions: sessions,
		Meta:     up.GetExportMetadata(),
	}); err != nil {
		Logger.Error("Failed to upload run", "error", err, "path", path)
		return
	}
	Logger.Info("Uploaded run", "path", path, "sessions", len(sessions))
}
