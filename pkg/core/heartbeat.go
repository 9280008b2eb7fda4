// pkg/core/heartbeat.go
package core

import "time"

// Heartbeat is one position sample for one player at one time step.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
	PlayerID  string    `json:"playerId"`
	SessionID string    `json:"sessionId"`
	TeamID    string    `json:"teamId"`
	Tick      int       `json:"-"`
	PositionX float64   `json:"positionX"`
	PositionY float64   `json:"positionY"`
	PositionZ float64   `json:"positionZ"`
}

// Position returns the heartbeat coordinates as a Position3D.
func (h Heartbeat) Position() Position3D {
	return Position3D{X: h.PositionX, Y: h.PositionY, Z: h.PositionZ}
}
