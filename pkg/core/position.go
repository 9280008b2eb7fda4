// pkg/core/position.go
package core

import "math"

// Position3D is a point in arena space. Units are arbitrary grid units.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the Euclidean distance between p and o.
func (p Position3D) Distance(o Position3D) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Clamp limits every coordinate to the closed interval [lower, upper].
func (p Position3D) Clamp(lower, upper float64) Position3D {
	return Position3D{
		X: clamp(p.X, lower, upper),
		Y: clamp(p.Y, lower, upper),
		Z: clamp(p.Z, lower, upper),
	}
}

// Round returns p with every coordinate rounded to the given number of decimals.
func (p Position3D) Round(decimals int) Position3D {
	scale := math.Pow(10, float64(decimals))
	return Position3D{
		X: math.Round(p.X*scale) / scale,
		Y: math.Round(p.Y*scale) / scale,
		Z: math.Round(p.Z*scale) / scale,
	}
}

func clamp(v, lower, upper float64) float64 {
	return math.Max(math.Min(v, upper), lower)
}
