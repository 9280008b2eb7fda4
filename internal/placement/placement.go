// Package placement assigns collision-free starting positions inside the
// arena cube.
package placement

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// Defaults used when an Allocator field is left zero.
const (
	DefaultMinSeparation = 1.0
	DefaultMaxAttempts   = 1000
)

// ExhaustionError reports a placement that ran out of attempts.
type ExhaustionError struct {
	Requested int
	Placed    int
	Attempts  int
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("placed %d of %d players before exceeding %d rejected attempts",
		e.Placed, e.Requested, e.Attempts)
}

// Is lets errors.Is match core.ErrResourceExhaustion.
func (e *ExhaustionError) Is(target error) bool {
	return target == core.ErrResourceExhaustion
}

// Allocator samples positions uniformly within [Lower, Upper]^3.
type Allocator struct {
	Lower         float64
	Upper         float64
	MinSeparation float64
	MaxAttempts   int
}

// New returns an allocator for the cube [-halfExtent, halfExtent]^3 with default limits.
func New(halfExtent float64) *Allocator {
	return &Allocator{
		Lower:         -halfExtent,
		Upper:         halfExtent,
		MinSeparation: DefaultMinSeparation,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

// Validate checks the cube and limits.
func (a *Allocator) Validate() error {
	if a.Lower > a.Upper {
		return fmt.Errorf("%w: placement lower bound %v above upper bound %v", core.ErrConfiguration, a.Lower, a.Upper)
	}
	if a.MinSeparation < 0 {
		return fmt.Errorf("%w: negative placement separation %v", core.ErrConfiguration, a.MinSeparation)
	}
	if a.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative placement attempt budget %d", core.ErrConfiguration, a.MaxAttempts)
	}
	return nil
}

// Allocate returns n positions, pairwise at least MinSeparation apart.
// Accepted candidates are assigned in order. After more than MaxAttempts
// rejections it returns an *ExhaustionError and no positions.
func (a *Allocator) Allocate(rng *rand.Rand, n int) ([]core.Position3D, error) {
	if n <= 0 {
		return nil, nil
	}
	minSep := a.MinSeparation
	maxAttempts := a.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	placed := make([]core.Position3D, 0, n)
	rejected := 0
	for len(placed) < n {
		candidate := core.Position3D{
			X: a.sample(rng),
			Y: a.sample(rng),
			Z: a.sample(rng),
		}
		if collides(candidate, placed, minSep) {
			rejected++
			if rejected > maxAttempts {
				return nil, &ExhaustionError{Requested: n, Placed: len(placed), Attempts: maxAttempts}
			}
			continue
		}
		placed = append(placed, candidate)
	}
	return placed, nil
}

// AllocateFor places one position per player, keyed by player id.
func (a *Allocator) AllocateFor(rng *rand.Rand, players []string) (map[string]core.Position3D, error) {
	positions, err := a.Allocate(rng, len(players))
	if err != nil {
		return nil, err
	}
	out := make(map[string]core.Position3D, len(players))
	for i, pid := range players {
		out[pid] = positions[i]
	}
	return out, nil
}

func (a *Allocator) sample(rng *rand.Rand) float64 {
	return a.Lower + rng.Float64()*(a.Upper-a.Lower)
}

func collides(candidate core.Position3D, placed []core.Position3D, minSep float64) bool {
	for _, p := range placed {
		if candidate.Distance(p) < minSep {
			return true
		}
	}
	return false
}

// IsExhausted reports whether err came from a failed placement.
func IsExhausted(err error) bool {
	var ex *ExhaustionError
	return errors.As(err, &ex)
}
