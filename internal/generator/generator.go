// Package generator runs a whole synthetic run: it builds the roster, walks
// the days, and for every assembled session simulates heartbeats, splits
// kills and deaths, and hands the record to the storage backend.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/heartbeat"
	"github.com/OCAP2/telemetry-synth/internal/influx"
	"github.com/OCAP2/telemetry-synth/internal/logging"
	"github.com/OCAP2/telemetry-synth/internal/placement"
	"github.com/OCAP2/telemetry-synth/internal/roster"
	"github.com/OCAP2/telemetry-synth/internal/session"
	"github.com/OCAP2/telemetry-synth/internal/storage"
	"github.com/OCAP2/telemetry-synth/internal/summary"
	"github.com/OCAP2/telemetry-synth/pkg/core"
	"github.com/google/uuid"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/OCAP2/telemetry-synth/internal/generator"

// Dependencies holds everything a Generator writes to.
type Dependencies struct {
	Backend    storage.Backend
	LogManager *logging.SlogManager
	// Influx is optional.
	Influx *influx.Manager
	// Meter defaults to the global OTel meter.
	Meter metric.Meter
}

// Result totals a finished run.
type Result struct {
	RunID      string
	Days       int
	Sessions   int64
	Skipped    int64
	Heartbeats int64
	Elapsed    time.Duration
}

// Progress is a live snapshot of a run in flight.
type Progress struct {
	Sessions   int64 `json:"sessions"`
	Skipped    int64 `json:"skipped"`
	Heartbeats int64 `json:"heartbeats"`
}

type counters struct {
	sessions   metric.Int64Counter
	skipped    metric.Int64Counter
	heartbeats metric.Int64Counter
}

// Generator produces one run. Construct a new one per run.
type Generator struct {
	sim   config.SimulationConfig
	deps  Dependencies
	runID string

	assembler  *session.Assembler
	simulator  *heartbeat.Simulator
	aggregator *summary.Aggregator
	metrics    counters

	sessions   atomic.Int64
	skipped    atomic.Int64
	heartbeats atomic.Int64
}

// New validates sim and prepares a run. An empty runID draws a fresh one.
func New(sim config.SimulationConfig, runID string, deps Dependencies) (*Generator, error) {
	if sim.Players < 1 {
		return nil, fmt.Errorf("%w: players must be positive, got %d", core.ErrConfiguration, sim.Players)
	}
	if sim.Days < 1 {
		return nil, fmt.Errorf("%w: days must be positive, got %d", core.ErrConfiguration, sim.Days)
	}
	if sim.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("%w: heartbeat interval must be positive, got %s", core.ErrConfiguration, sim.HeartbeatInterval)
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("%w: no storage backend", core.ErrConfiguration)
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	placer := placement.New(sim.GridHalfExtent)
	if sim.MinSeparation > 0 {
		placer.MinSeparation = sim.MinSeparation
	}
	if sim.PlacementMaxAttempts > 0 {
		placer.MaxAttempts = sim.PlacementMaxAttempts
	}

	assembler, err := session.New(session.Config{
		MinTeams:             sim.MinTeams,
		MaxTeams:             sim.MaxTeams,
		MinPlayersPerTeam:    sim.MinPlayersPerTeam,
		MaxPlayersPerTeam:    sim.MaxPlayersPerTeam,
		MinSpeed:             sim.MinSpeed,
		MaxSpeed:             sim.MaxSpeed,
		MinDuration:          sim.MinPlayerDuration,
		SessionMaxDuration:   sim.SessionMaxDuration,
		StartWindow:          sim.SessionStartWindow,
		AvgSessionsPerPlayer: sim.AvgSessionsPerPlayer,
		MinSessionsPerPlayer: sim.MinSessionsPerPlayer,
		MaxSessionsPerPlayer: sim.MaxSessionsPerPlayer,
		Behaviors:            sim.Behaviors,
	}, placer, session.NewIDGenerator(runID))
	if err != nil {
		return nil, err
	}

	aggregator, err := summary.New(sim.MinKills, sim.MaxKills)
	if err != nil {
		return nil, err
	}

	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}

	g := &Generator{
		sim:        sim,
		deps:       deps,
		runID:      runID,
		assembler:  assembler,
		simulator:  heartbeat.New(sim.GridHalfExtent, sim.HeartbeatInterval, placer),
		aggregator: aggregator,
	}
	if err := g.initMetrics(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Generator) initMetrics() error {
	var err error
	m := g.deps.Meter
	if g.metrics.sessions, err = m.Int64Counter("generator.sessions.generated",
		metric.WithDescription("Sessions handed to the storage backend")); err != nil {
		return err
	}
	if g.metrics.skipped, err = m.Int64Counter("generator.sessions.skipped",
		metric.WithDescription("Sessions dropped because start positions could not be placed")); err != nil {
		return err
	}
	if g.metrics.heartbeats, err = m.Int64Counter("generator.heartbeats.emitted",
		metric.WithDescription("Heartbeats simulated")); err != nil {
		return err
	}
	return nil
}

// RunID returns the id the run's sessions and teams are derived from.
func (g *Generator) RunID() string {
	return g.runID
}

// Progress reports the counts so far; safe to call while Run is going.
func (g *Generator) Progress() Progress {
	return Progress{
		Sessions:   g.sessions.Load(),
		Skipped:    g.skipped.Load(),
		Heartbeats: g.heartbeats.Load(),
	}
}

func (g *Generator) logger() *slog.Logger {
	return g.deps.LogManager.Logger()
}

// Run generates the roster and every day's sessions. Days run on up to
// sim.Workers goroutines; each day draws from its own stream seeded from
// (seed, day index), so the output does not depend on the worker count.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	started := time.Now()

	root := rand.New(rand.NewPCG(g.sim.Seed, 0))
	ids := roster.GeneratePlayerIDs(root, g.sim.Players)
	countries := roster.AssignCountries(root, ids, g.sim.Countries)
	days := roster.GroupByDay(roster.ModelSignOns(root, ids, g.sim.Days, g.sim.StartDate))

	players := make([]core.Player, len(ids))
	for i, id := range ids {
		players[i] = core.Player{ID: id, Country: countries[id]}
	}

	run := &core.Run{
		ID:        g.runID,
		Seed:      g.sim.Seed,
		StartDate: g.sim.StartDate,
		Days:      g.sim.Days,
		Players:   g.sim.Players,
		StartedAt: started.UTC(),
	}
	if err := g.deps.Backend.StartRun(run, players); err != nil {
		return Result{RunID: g.runID}, fmt.Errorf("failed to start run: %w", err)
	}
	g.logger().InfoContext(ctx, "Run started", "players", len(players), "activeDays", len(days), "seed", g.sim.Seed)

	workers := g.sim.Workers
	if workers < 1 {
		workers = 1
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, day := range days {
		eg.Go(func() error {
			return g.runDay(egCtx, day, countries)
		})
	}

	res := Result{RunID: g.runID, Days: len(days)}
	if err := eg.Wait(); err != nil {
		return g.totals(res, started), err
	}

	if err := g.deps.Backend.EndRun(); err != nil {
		return g.totals(res, started), fmt.Errorf("failed to end run: %w", err)
	}

	res = g.totals(res, started)
	g.logger().InfoContext(ctx, "Run finished",
		"sessions", res.Sessions,
		"skipped", res.Skipped,
		"heartbeats", res.Heartbeats,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (g *Generator) totals(res Result, started time.Time) Result {
	p := g.Progress()
	res.Sessions = p.Sessions
	res.Skipped = p.Skipped
	res.Heartbeats = p.Heartbeats
	res.Elapsed = time.Since(started)
	return res
}

// runDay assembles one day and pushes every session through simulation,
// aggregation and storage.
func (g *Generator) runDay(ctx context.Context, day roster.Day, countries map[string]string) error {
	started := time.Now()
	ctx = logging.WithAttrs(ctx, slog.String("day", day.Date.Format(time.DateOnly)))
	rng := rand.New(rand.NewPCG(g.sim.Seed, uint64(day.Index)+1))

	res, err := g.assembler.AssembleDay(rng, day, func(s *core.Session) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return g.process(ctx, rng, s, countries)
	})
	if res.Skipped > 0 {
		g.skipped.Add(int64(res.Skipped))
		g.metrics.skipped.Add(ctx, int64(res.Skipped))
		g.logger().WarnContext(ctx, "Sessions skipped, start positions could not be placed", "skipped", res.Skipped)
	}
	if err != nil {
		return fmt.Errorf("day %s: %w", day.Date.Format(time.DateOnly), err)
	}

	elapsed := time.Since(started)
	g.logger().DebugContext(ctx, "Day assembled",
		"active", len(day.Players),
		"estimated", res.Estimated,
		"sessions", res.Sessions,
		"poolExhausted", res.PoolExhausted,
		"elapsed", elapsed,
	)
	g.writePoint(ctx, influx.BucketPerformance, func() *influxdb2_write.Point {
		return influx.DayPoint(g.runID, day.Date, len(day.Players), res.Sessions, res.Skipped, elapsed)
	})
	return nil
}

func (g *Generator) process(ctx context.Context, rng *rand.Rand, s *core.Session, countries map[string]string) error {
	hbs, err := g.simulator.Simulate(rng, heartbeat.InputFromSession(s))
	if err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	split, err := g.aggregator.Aggregate(rng, s.Players)
	if err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}

	rec := &core.SessionRecord{
		Session:    s,
		Heartbeats: hbs,
		Summaries:  summary.Summaries(s, split, countries),
	}
	if err := g.deps.Backend.RecordSession(rec); err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}

	g.sessions.Add(1)
	g.heartbeats.Add(int64(len(hbs)))
	g.metrics.sessions.Add(ctx, 1)
	g.metrics.heartbeats.Add(ctx, int64(len(hbs)), metric.WithAttributes(attribute.Int("players", len(s.Players))))
	g.writePoint(ctx, influx.BucketSessions, func() *influxdb2_write.Point {
		return influx.SessionPoint(g.runID, rec)
	})
	return nil
}

// writePoint sends a point to InfluxDB when a manager is configured.
// Failures are logged and never stop the run.
func (g *Generator) writePoint(ctx context.Context, bucket string, build func() *influxdb2_write.Point) {
	if g.deps.Influx == nil {
		return
	}
	if err := g.deps.Influx.WritePoint(bucket, build()); err != nil {
		g.logger().WarnContext(ctx, "Failed to write InfluxDB point", "bucket", bucket, "error", err)
	}
}
