package generator

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/influx"
	"github.com/OCAP2/telemetry-synth/internal/logging"
	"github.com/OCAP2/telemetry-synth/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// fakeBackend keeps everything it is handed.
type fakeBackend struct {
	mu        sync.Mutex
	run       *core.Run
	players   []core.Player
	records   []*core.SessionRecord
	started   int
	ended     int
	recordErr error
}

func (f *fakeBackend) Init() error  { return nil }
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) StartRun(run *core.Run, players []core.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.run = run
	f.players = players
	f.started++
	return nil
}

func (f *fakeBackend) RecordSession(rec *core.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeBackend) EndRun() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return nil
}

func (f *fakeBackend) sorted() []*core.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*core.SessionRecord(nil), f.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Session.ID < out[j].Session.ID })
	return out
}

func testSim() config.SimulationConfig {
	return config.SimulationConfig{
		Seed:                 42,
		Players:              60,
		Days:                 3,
		StartDate:            time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Workers:              2,
		GridHalfExtent:       100,
		HeartbeatInterval:    30 * time.Second,
		SessionMaxDuration:   10 * time.Minute,
		MinPlayerDuration:    2 * time.Minute,
		SessionStartWindow:   12 * time.Hour,
		MinTeams:             1,
		MaxTeams:             3,
		MinPlayersPerTeam:    1,
		MaxPlayersPerTeam:    2,
		AvgSessionsPerPlayer: 3,
		MinSessionsPerPlayer: 1,
		MaxSessionsPerPlayer: 5,
		MinSpeed:             1,
		MaxSpeed:             3,
		MinKills:             10,
		MaxKills:             59,
		MinSeparation:        1,
		PlacementMaxAttempts: 1000,
	}
}

func newTestGenerator(t *testing.T, sim config.SimulationConfig, backend *fakeBackend) *Generator {
	t.Helper()
	g, err := New(sim, "run-fixed", Dependencies{Backend: backend, LogManager: logging.NewSlogManager()})
	require.NoError(t, err)
	return g
}

func TestRun_DeliversConsistentRecords(t *testing.T) {
	backend := &fakeBackend{}
	sim := testSim()
	res, err := newTestGenerator(t, sim, backend).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, backend.started)
	assert.Equal(t, 1, backend.ended)
	assert.Equal(t, "run-fixed", backend.run.ID)
	assert.Len(t, backend.players, sim.Players)

	records := backend.sorted()
	require.NotEmpty(t, records)
	assert.Equal(t, int64(len(records)), res.Sessions)

	var heartbeats int64
	seen := make(map[string]bool)
	for _, rec := range records {
		s := rec.Session
		assert.False(t, seen[s.ID], "duplicate session %s", s.ID)
		seen[s.ID] = true
		assert.Equal(t, s.StartTime.Add(sim.SessionMaxDuration), s.EndTime)

		kills, deaths := 0, 0
		for _, sum := range rec.Summaries {
			kills += sum.Kills
			deaths += sum.Deaths
			assert.NotEmpty(t, sum.Country)
			assert.Equal(t, s.EndTime, sum.EventDateTime)
		}
		assert.Equal(t, kills, deaths, s.ID)
		assert.Len(t, rec.Summaries, len(s.Players))

		perPlayer := make(map[string]int)
		for _, hb := range rec.Heartbeats {
			perPlayer[hb.PlayerID]++
			assert.Equal(t, s.ID, hb.SessionID)
			assert.Equal(t, s.TeamOf[hb.PlayerID], hb.TeamID)
			for _, v := range []float64{hb.PositionX, hb.PositionY, hb.PositionZ} {
				assert.LessOrEqual(t, v, sim.GridHalfExtent)
				assert.GreaterOrEqual(t, v, -sim.GridHalfExtent)
			}
		}
		for _, pid := range s.Players {
			want := s.Attributes[pid].DurationSeconds / 30
			assert.Equal(t, want, perPlayer[pid], "player %s in %s", pid, s.ID)
		}
		heartbeats += int64(len(rec.Heartbeats))
	}
	assert.Equal(t, heartbeats, res.Heartbeats)
}

func TestRun_OutputIndependentOfWorkerCount(t *testing.T) {
	collect := func(workers int) []*core.SessionRecord {
		backend := &fakeBackend{}
		sim := testSim()
		sim.Workers = workers
		_, err := newTestGenerator(t, sim, backend).Run(context.Background())
		require.NoError(t, err)
		return backend.sorted()
	}

	serial := collect(1)
	parallel := collect(4)
	require.Equal(t, len(serial), len(parallel))
	for i := range serial {
		assert.Equal(t, serial[i].Session.ID, parallel[i].Session.ID)
		assert.Equal(t, serial[i].Heartbeats, parallel[i].Heartbeats)
		assert.Equal(t, serial[i].Summaries, parallel[i].Summaries)
	}
}

func TestRun_RecordErrorStopsRun(t *testing.T) {
	backend := &fakeBackend{recordErr: errors.New("disk full")}
	_, err := newTestGenerator(t, testSim(), backend).Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 0, backend.ended)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &fakeBackend{}
	_, err := newTestGenerator(t, testSim(), backend).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, backend.records)
}

func TestRun_PlacementExhaustionSkips(t *testing.T) {
	sim := testSim()
	sim.GridHalfExtent = 0.3
	sim.MinTeams, sim.MaxTeams = 2, 2
	sim.MinPlayersPerTeam, sim.MaxPlayersPerTeam = 2, 2
	sim.PlacementMaxAttempts = 50

	backend := &fakeBackend{}
	res, err := newTestGenerator(t, sim, backend).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Sessions)
	assert.Positive(t, res.Skipped)
	assert.Equal(t, 1, backend.ended)
}

func TestRun_WritesInfluxBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx.gz")
	m := influx.NewManager(config.InfluxConfig{}, zerolog.Nop(), path)
	require.NoError(t, m.OpenBackup())

	backend := &fakeBackend{}
	g, err := New(testSim(), "run-fixed", Dependencies{Backend: backend, Influx: m})
	require.NoError(t, err)
	_, err = g.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	assert.FileExists(t, path)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.SimulationConfig)
	}{
		{"no players", func(c *config.SimulationConfig) { c.Players = 0 }},
		{"no days", func(c *config.SimulationConfig) { c.Days = 0 }},
		{"unknown behavior", func(c *config.SimulationConfig) { c.Behaviors = []string{"teleport"} }},
		{"inverted kills", func(c *config.SimulationConfig) { c.MinKills, c.MaxKills = 9, 3 }},
		{"inverted teams", func(c *config.SimulationConfig) { c.MinTeams, c.MaxTeams = 4, 2 }},
		{"zero heartbeat interval", func(c *config.SimulationConfig) { c.HeartbeatInterval = 0 }},
		{"negative heartbeat interval", func(c *config.SimulationConfig) { c.HeartbeatInterval = -30 * time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := testSim()
			tt.mutate(&sim)
			_, err := New(sim, "", Dependencies{Backend: &fakeBackend{}})
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestNew_NoBackend(t *testing.T) {
	_, err := New(testSim(), "", Dependencies{})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNew_DrawsRunID(t *testing.T) {
	a, err := New(testSim(), "", Dependencies{Backend: &fakeBackend{}})
	require.NoError(t, err)
	b, err := New(testSim(), "", Dependencies{Backend: &fakeBackend{}})
	require.NoError(t, err)
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestProgress_MatchesResult(t *testing.T) {
	backend := &fakeBackend{}
	g := newTestGenerator(t, testSim(), backend)
	assert.Equal(t, Progress{}, g.Progress())

	res, err := g.Run(context.Background())
	require.NoError(t, err)

	p := g.Progress()
	assert.Equal(t, res.Sessions, p.Sessions)
	assert.Equal(t, res.Skipped, p.Skipped)
	assert.Equal(t, res.Heartbeats, p.Heartbeats)
	assert.Equal(t, int64(len(backend.records)), p.Sessions)
}

// collectSums reads every int64 counter from reader, summed over attributes.
func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				sums[m.Name] += dp.Value
			}
		}
	}
	return sums
}

func TestRun_CountersMatchResult(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	sim := testSim()
	sim.GridHalfExtent = 0.6
	sim.PlacementMaxAttempts = 50

	g, err := New(sim, "run-metrics", Dependencies{
		Backend:    &fakeBackend{},
		LogManager: logging.NewSlogManager(),
		Meter:      mp.Meter("test"),
	})
	require.NoError(t, err)

	res, err := g.Run(context.Background())
	require.NoError(t, err)
	require.Positive(t, res.Sessions+res.Skipped)

	sums := collectSums(t, reader)
	assert.Equal(t, res.Sessions, sums["generator.sessions.generated"])
	assert.Equal(t, res.Skipped, sums["generator.sessions.skipped"])
	assert.Equal(t, res.Heartbeats, sums["generator.heartbeats.emitted"])
}
