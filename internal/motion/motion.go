// Package motion holds the per-step movement models used to drive player
// positions through a session. Every model is a pure function of
// (position, speed, tick); the set is closed and enumerated by Model.
package motion

import (
	"fmt"
	"math"
	"strings"

	"github.com/OCAP2/telemetry-synth/pkg/core"
	perlin "github.com/aquilax/go-perlin"
)

// Model identifies one movement model.
type Model uint8

const (
	// DampedRadial advances along X by speed/(1+x²) and oscillates Y/Z.
	DampedRadial Model = iota + 1
	// ParametricCurve blends toward a quadratic Bezier path.
	ParametricCurve
	// Harmonic superimposes per-axis sines with distinct frequencies.
	Harmonic
	// CoherentNoise follows 1-D Perlin noise with per-axis offsets.
	CoherentNoise
)

var names = map[Model]string{
	DampedRadial:    "lorentzian",
	ParametricCurve: "bezier",
	Harmonic:        "lissajous",
	CoherentNoise:   "perlin",
}

var aliases = map[string]Model{
	"lorentzian":       DampedRadial,
	"damped-radial":    DampedRadial,
	"bezier":           ParametricCurve,
	"parametric-curve": ParametricCurve,
	"lissajous":        Harmonic,
	"harmonic":         Harmonic,
	"perlin":           CoherentNoise,
	"coherent-noise":   CoherentNoise,
}

// All returns every model in declaration order.
func All() []Model {
	return []Model{DampedRadial, ParametricCurve, Harmonic, CoherentNoise}
}

// String returns the canonical model name.
func (m Model) String() string {
	if n, ok := names[m]; ok {
		return n
	}
	return fmt.Sprintf("Model(%d)", uint8(m))
}

// Parse resolves a canonical name or alias. Unknown names wrap core.ErrConfiguration.
func Parse(name string) (Model, error) {
	if m, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: unknown motion model %q", core.ErrConfiguration, name)
}

// ParseAll resolves a list of names, failing on the first unknown one.
// An empty list yields every model.
func ParseAll(list []string) ([]Model, error) {
	if len(list) == 0 {
		return All(), nil
	}
	out := make([]Model, 0, len(list))
	for _, n := range list {
		m, err := Parse(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Step advances p by one tick.
func (m Model) Step(p core.Position3D, speed float64, t int) core.Position3D {
	switch m {
	case DampedRadial:
		return lorentzian(p, speed, t)
	case ParametricCurve:
		return bezier(p, speed, t)
	case Harmonic:
		return lissajous(p, speed, t)
	case CoherentNoise:
		return perlinStep(p, speed, t)
	default:
		panic(fmt.Sprintf("motion: step on invalid model %d", uint8(m)))
	}
}

func lorentzian(p core.Position3D, speed float64, t int) core.Position3D {
	ft := float64(t)
	return core.Position3D{
		X: p.X + speed/(1+p.X*p.X),
		Y: p.Y + math.Sin(ft/10.0)*speed*0.1,
		Z: p.Z + math.Cos(ft/10.0)*speed*0.1,
	}
}

const bezierRate = 0.05

var bezierControl = [3]core.Position3D{
	{X: 20, Y: 30, Z: 40},
	{X: -40, Y: -30, Z: -20},
	{X: 0, Y: 0, Z: 0},
}

func bezier(p core.Position3D, speed float64, t int) core.Position3D {
	u := math.Mod(float64(t), 1)
	w0, w1, w2 := (1-u)*(1-u), 2*(1-u)*u, u*u
	target := core.Position3D{
		X: w0*bezierControl[0].X + w1*bezierControl[1].X + w2*bezierControl[2].X,
		Y: w0*bezierControl[0].Y + w1*bezierControl[1].Y + w2*bezierControl[2].Y,
		Z: w0*bezierControl[0].Z + w1*bezierControl[1].Z + w2*bezierControl[2].Z,
	}
	k := speed * bezierRate
	return core.Position3D{
		X: p.X + (target.X-p.X)*k,
		Y: p.Y + (target.Y-p.Y)*k,
		Z: p.Z + (target.Z-p.Z)*k,
	}
}

const (
	lissajousScale     = 0.05
	lissajousAmplitude = 0.5
)

func lissajous(p core.Position3D, speed float64, t int) core.Position3D {
	ft := float64(t) * lissajousScale
	a := speed * lissajousAmplitude
	return core.Position3D{
		X: p.X + math.Sin(3*ft)*a,
		Y: p.Y + math.Sin(4*ft+math.Pi/2)*a,
		Z: p.Z + math.Sin(5*ft+math.Pi)*a,
	}
}

// noise is read-only after construction and safe to share.
var noise = perlin.NewPerlin(2, 2, 1, 1)

func perlinStep(p core.Position3D, speed float64, t int) core.Position3D {
	ft := float64(t)
	return core.Position3D{
		X: p.X + noise.Noise1D(ft*0.1)*speed,
		Y: p.Y + noise.Noise1D((ft+100)*0.1)*speed,
		Z: p.Z + noise.Noise1D((ft+200)*0.1)*speed,
	}
}
