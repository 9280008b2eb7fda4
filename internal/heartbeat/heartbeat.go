// Package heartbeat steps every player of a session through their motion
// model and emits one position sample per heartbeat interval.
package heartbeat

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/motion"
	"github.com/OCAP2/telemetry-synth/internal/placement"
	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// DefaultInterval is the time between two heartbeats of one player.
const DefaultInterval = 30 * time.Second

// positionDecimals is the precision heartbeat coordinates are emitted with.
const positionDecimals = 3

// Input is everything the simulator needs about one session. Speed,
// Duration and Behavior are keyed by player id. Starts is optional; when
// nil the simulator places players itself.
type Input struct {
	Players      []string
	SessionID    string
	TeamOf       map[string]string
	SessionStart time.Time
	Speed        map[string]int
	Duration     map[string]time.Duration
	Behavior     map[string]string
	Starts       map[string]core.Position3D
}

// InputFromSession flattens an assembled session into simulator input.
func InputFromSession(s *core.Session) Input {
	in := Input{
		Players:      s.Players,
		SessionID:    s.ID,
		TeamOf:       s.TeamOf,
		SessionStart: s.StartTime,
		Speed:        make(map[string]int, len(s.Players)),
		Duration:     make(map[string]time.Duration, len(s.Players)),
		Behavior:     make(map[string]string, len(s.Players)),
		Starts:       make(map[string]core.Position3D, len(s.Players)),
	}
	for _, pid := range s.Players {
		attr := s.Attributes[pid]
		in.Speed[pid] = attr.Speed
		in.Duration[pid] = time.Duration(attr.DurationSeconds) * time.Second
		in.Behavior[pid] = attr.Behavior
		in.Starts[pid] = attr.Start
	}
	return in
}

// Simulator produces heartbeats inside the cube [Lower, Upper]^3.
type Simulator struct {
	Interval time.Duration
	Lower    float64
	Upper    float64
	Placer   *placement.Allocator
}

// New returns a simulator for the cube [-halfExtent, halfExtent]^3.
func New(halfExtent float64, interval time.Duration, placer *placement.Allocator) *Simulator {
	return &Simulator{Interval: interval, Lower: -halfExtent, Upper: halfExtent, Placer: placer}
}

// Count returns how many heartbeats a player active for d produces.
func (s *Simulator) Count(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / s.interval())
}

func (s *Simulator) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultInterval
	}
	return s.Interval
}

// Simulate returns the heartbeats of every player in the session, grouped
// by player in input order and time-ordered within each player. Behavior
// names are checked before anything is stepped. A placement failure
// returns the error and no heartbeats.
func (s *Simulator) Simulate(rng *rand.Rand, in Input) ([]core.Heartbeat, error) {
	models := make(map[string]motion.Model, len(in.Players))
	for _, pid := range in.Players {
		m, err := motion.Parse(in.Behavior[pid])
		if err != nil {
			return nil, fmt.Errorf("player %s in session %s: %w", pid, in.SessionID, err)
		}
		models[pid] = m
	}

	starts := in.Starts
	if starts == nil {
		if s.Placer == nil {
			return nil, fmt.Errorf("%w: no start positions and no placement allocator", core.ErrConfiguration)
		}
		var err error
		starts, err = s.Placer.AllocateFor(rng, in.Players)
		if err != nil {
			return nil, fmt.Errorf("placing session %s: %w", in.SessionID, err)
		}
	}

	interval := s.interval()
	total := 0
	for _, pid := range in.Players {
		total += s.Count(in.Duration[pid])
	}

	out := make([]core.Heartbeat, 0, total)
	for _, pid := range in.Players {
		pos := starts[pid]
		speed := float64(in.Speed[pid])
		steps := s.Count(in.Duration[pid])
		for i := 0; i < steps; i++ {
			pos = models[pid].Step(pos, speed, i).Clamp(s.Lower, s.Upper)
			emitted := pos.Round(positionDecimals)
			out = append(out, core.Heartbeat{
				Timestamp: in.SessionStart.Add(time.Duration(i) * interval),
				PlayerID:  pid,
				SessionID: in.SessionID,
				TeamID:    in.TeamOf[pid],
				Tick:      i,
				PositionX: emitted.X,
				PositionY: emitted.Y,
				PositionZ: emitted.Z,
			})
		}
	}
	return out, nil
}
