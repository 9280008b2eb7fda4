// pkg/core/run.go
package core

import "time"

// Run describes one invocation of the generator.
type Run struct {
	ID        string    `json:"runId"`
	Seed      uint64    `json:"seed"`
	StartDate time.Time `json:"startDate"`
	Days      int       `json:"days"`
	Players   int       `json:"players"`
	StartedAt time.Time `json:"startedAt"`
}

// SignOn records that a player was active on a given day.
type SignOn struct {
	PlayerID string
	Date     time.Time
}

// UploadMetadata describes an exported file for the ingest API.
type UploadMetadata struct {
	RunID    string
	Kind     string
	Sessions int
}

// Player is a roster entry.
type Player struct {
	ID      string `json:"playerId"`
	Country string `json:"country"`
}
