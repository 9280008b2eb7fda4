// Package summary splits a session's kills and deaths across its players
// and builds the per-player summary rows.
package summary

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/OCAP2/telemetry-synth/pkg/core"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// UnknownCountry is reported for players without a country assignment.
const UnknownCountry = "Unknown"

// Default kill total bounds, inclusive.
const (
	DefaultMinKills = 10
	DefaultMaxKills = 59
)

// ErrNoPlayers is returned when asked to split totals across nobody.
var ErrNoPlayers = errors.New("summary: session has no players")

// Split is a session's kill total and its per-player allocation. Kills and
// Deaths are indexed like the player list they were drawn for.
type Split struct {
	Total  int
	Kills  []int
	Deaths []int
}

// Aggregator draws kill and death splits.
type Aggregator struct {
	MinKills int
	MaxKills int
}

// New returns an aggregator drawing totals from [minKills, maxKills].
func New(minKills, maxKills int) (*Aggregator, error) {
	if minKills < 0 || maxKills < minKills {
		return nil, fmt.Errorf("%w: kills must satisfy 0 <= min (%d) <= max (%d)", core.ErrConfiguration, minKills, maxKills)
	}
	return &Aggregator{MinKills: minKills, MaxKills: maxKills}, nil
}

// Aggregate draws one total and splits it twice, once as kills and once as
// deaths, each over an independent Dirichlet(1, ..., 1) weighting.
func (a *Aggregator) Aggregate(rng *rand.Rand, players []string) (Split, error) {
	if len(players) == 0 {
		return Split{}, ErrNoPlayers
	}
	total := a.MinKills + rng.IntN(a.MaxKills-a.MinKills+1)
	return Split{
		Total:  total,
		Kills:  multinomial(rng, total, dirichlet(rng, len(players))),
		Deaths: multinomial(rng, total, dirichlet(rng, len(players))),
	}, nil
}

// Summaries builds one row per session player. The event time is the
// session end; the event length is the player's own duration.
func Summaries(s *core.Session, split Split, countries map[string]string) []core.SessionSummary {
	out := make([]core.SessionSummary, len(s.Players))
	for i, pid := range s.Players {
		country, ok := countries[pid]
		if !ok || country == "" {
			country = UnknownCountry
		}
		out[i] = core.SessionSummary{
			PlayerID:           pid,
			SessionID:          s.ID,
			EventDateTime:      s.EndTime,
			Country:            country,
			EventLengthSeconds: s.Attributes[pid].DurationSeconds,
			Kills:              split.Kills[i],
			Deaths:             split.Deaths[i],
		}
	}
	return out
}

// dirichlet draws from the flat Dirichlet over n categories.
func dirichlet(rng *rand.Rand, n int) []float64 {
	alpha := make([]float64, n)
	for i := range alpha {
		alpha[i] = 1
	}
	return distmv.NewDirichlet(alpha, rng).Rand(nil)
}

// multinomial distributes total trials over the categories of p as a chain
// of conditional binomials; the last category takes what is left.
func multinomial(rng *rand.Rand, total int, p []float64) []int {
	counts := make([]int, len(p))
	remaining := total
	mass := 1.0
	for i := 0; i < len(p)-1 && remaining > 0; i++ {
		q := 1.0
		if mass > 0 {
			q = p[i] / mass
		}
		switch {
		case q >= 1:
			counts[i] = remaining
		case q > 0:
			drawn := int(distuv.Binomial{N: float64(remaining), P: q, Src: rng}.Rand())
			counts[i] = min(max(drawn, 0), remaining)
		}
		remaining -= counts[i]
		mass -= p[i]
	}
	counts[len(p)-1] += remaining
	return counts
}
