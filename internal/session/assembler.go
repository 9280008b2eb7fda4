// Package session partitions a day's active players into sessions and teams
// and assigns every player a motion model, speed, duration and start
// position.
//
// Sessions are assembled session-count-first: the number of sessions for
// the day is estimated up front and players are popped from a shuffled
// pool until either the pool or the estimate runs out.
package session

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/motion"
	"github.com/OCAP2/telemetry-synth/internal/placement"
	"github.com/OCAP2/telemetry-synth/internal/roster"
	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// Config bounds how sessions are assembled.
type Config struct {
	MinTeams          int
	MaxTeams          int
	MinPlayersPerTeam int
	MaxPlayersPerTeam int

	MinSpeed int
	MaxSpeed int

	MinDuration        time.Duration
	SessionMaxDuration time.Duration
	StartWindow        time.Duration

	AvgSessionsPerPlayer float64
	MinSessionsPerPlayer float64
	MaxSessionsPerPlayer float64

	// Behaviors restricts the motion models handed out. Empty means all.
	Behaviors []string
}

// Validate checks that every range is non-empty and positive.
func (c Config) Validate() error {
	switch {
	case c.MinTeams < 1 || c.MaxTeams < c.MinTeams:
		return fmt.Errorf("%w: teams per session must satisfy 1 <= min (%d) <= max (%d)", core.ErrConfiguration, c.MinTeams, c.MaxTeams)
	case c.MinPlayersPerTeam < 1 || c.MaxPlayersPerTeam < c.MinPlayersPerTeam:
		return fmt.Errorf("%w: players per team must satisfy 1 <= min (%d) <= max (%d)", core.ErrConfiguration, c.MinPlayersPerTeam, c.MaxPlayersPerTeam)
	case c.MinSpeed < 1 || c.MaxSpeed < c.MinSpeed:
		return fmt.Errorf("%w: speed must satisfy 1 <= min (%d) <= max (%d)", core.ErrConfiguration, c.MinSpeed, c.MaxSpeed)
	case c.MinDuration <= 0 || c.SessionMaxDuration < c.MinDuration:
		return fmt.Errorf("%w: player duration must satisfy 0 < min (%s) <= session max (%s)", core.ErrConfiguration, c.MinDuration, c.SessionMaxDuration)
	case c.StartWindow < 0:
		return fmt.Errorf("%w: negative session start window %s", core.ErrConfiguration, c.StartWindow)
	case c.AvgSessionsPerPlayer <= 0:
		return fmt.Errorf("%w: average sessions per player must be positive", core.ErrConfiguration)
	case c.MinSessionsPerPlayer > c.AvgSessionsPerPlayer || (c.MaxSessionsPerPlayer > 0 && c.MaxSessionsPerPlayer < c.AvgSessionsPerPlayer):
		return fmt.Errorf("%w: sessions per player must satisfy min (%v) <= avg (%v) <= max (%v)",
			core.ErrConfiguration, c.MinSessionsPerPlayer, c.AvgSessionsPerPlayer, c.MaxSessionsPerPlayer)
	}
	return nil
}

// Assembler builds sessions for one run.
type Assembler struct {
	cfg    Config
	models []motion.Model
	placer *placement.Allocator
	ids    *IDGenerator
}

// New validates cfg and resolves the configured motion models, so that an
// unknown model name fails here rather than mid-simulation.
func New(cfg Config, placer *placement.Allocator, ids *IDGenerator) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := placer.Validate(); err != nil {
		return nil, err
	}
	models, err := motion.ParseAll(cfg.Behaviors)
	if err != nil {
		return nil, err
	}
	return &Assembler{cfg: cfg, models: models, placer: placer, ids: ids}, nil
}

// EstimateSessions returns how many sessions a day with active players gets.
func (a *Assembler) EstimateSessions(active int) int {
	capacity := a.cfg.MaxTeams * a.cfg.MaxPlayersPerTeam
	return int(float64(active) * a.cfg.AvgSessionsPerPlayer / float64(capacity))
}

// DayResult summarizes one day of assembly.
type DayResult struct {
	Estimated int
	Sessions  int
	Skipped   int
	// PoolExhausted is set when the day ended because too few players were
	// left for the drawn team layout.
	PoolExhausted bool
}

// AssembleDay builds the day's sessions and hands each to emit in order.
// Sessions whose players cannot be placed are skipped and counted; an
// error from emit aborts the day.
func (a *Assembler) AssembleDay(rng *rand.Rand, day roster.Day, emit func(*core.Session) error) (DayResult, error) {
	pool := make([]string, len(day.Players))
	copy(pool, day.Players)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	res := DayResult{Estimated: a.EstimateSessions(len(pool))}
	for attempt := 0; len(pool) > 0 && attempt < res.Estimated; attempt++ {
		numTeams := between(rng, a.cfg.MinTeams, a.cfg.MaxTeams)
		perTeam := between(rng, a.cfg.MinPlayersPerTeam, a.cfg.MaxPlayersPerTeam)
		total := numTeams * perTeam
		if len(pool) < total {
			res.PoolExhausted = true
			break
		}

		group := make([]string, total)
		for i := range group {
			group[i] = pool[len(pool)-1]
			pool = pool[:len(pool)-1]
		}

		sess, err := a.build(rng, day, attempt, group, numTeams, perTeam)
		if err != nil {
			if placement.IsExhausted(err) {
				res.Skipped++
				continue
			}
			return res, err
		}
		if err := emit(sess); err != nil {
			return res, err
		}
		res.Sessions++
	}
	return res, nil
}

func (a *Assembler) build(rng *rand.Rand, day roster.Day, seq int, group []string, numTeams, perTeam int) (*core.Session, error) {
	id := a.ids.SessionID(day.Index, seq)

	teams := make([]core.Team, numTeams)
	teamOf := make(map[string]string, len(group))
	for i := range teams {
		members := group[i*perTeam : (i+1)*perTeam]
		teams[i] = core.Team{ID: a.ids.TeamID(id, i), Players: members}
		for _, pid := range members {
			teamOf[pid] = teams[i].ID
		}
	}

	offset := time.Duration(rng.Int64N(int64(a.cfg.StartWindow/time.Second)+1)) * time.Second
	start := day.Date.Add(offset)

	behaviors := make([]motion.Model, len(group))
	for i := range group {
		behaviors[i] = a.models[rng.IntN(len(a.models))]
	}
	speeds := make([]int, len(group))
	for i := range group {
		speeds[i] = between(rng, a.cfg.MinSpeed, a.cfg.MaxSpeed)
	}
	durations := make([]int, len(group))
	minSec, maxSec := int(a.cfg.MinDuration/time.Second), int(a.cfg.SessionMaxDuration/time.Second)
	for i := range group {
		durations[i] = between(rng, minSec, maxSec)
	}

	starts, err := a.placer.Allocate(rng, len(group))
	if err != nil {
		return nil, fmt.Errorf("placing session %s: %w", id, err)
	}

	attrs := make(map[string]core.PlayerSessionAttributes, len(group))
	for i, pid := range group {
		attrs[pid] = core.PlayerSessionAttributes{
			Behavior:        behaviors[i].String(),
			Speed:           speeds[i],
			DurationSeconds: durations[i],
			Start:           starts[i],
		}
	}

	return &core.Session{
		ID:         id,
		Day:        day.Date,
		StartTime:  start,
		EndTime:    start.Add(a.cfg.SessionMaxDuration),
		Players:    group,
		Teams:      teams,
		TeamOf:     teamOf,
		Attributes: attrs,
	}, nil
}

// between draws uniformly from the inclusive range [lo, hi].
func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}
