// pkg/core/session.go
package core

import "time"

// Team is a group of players inside a single session.
type Team struct {
	ID      string   `json:"teamId"`
	Players []string `json:"players"`
}

// PlayerSessionAttributes holds what a player was assigned for one session.
type PlayerSessionAttributes struct {
	Behavior        string     `json:"behavior"`
	Speed           int        `json:"speed"`
	DurationSeconds int        `json:"durationSeconds"`
	Start           Position3D `json:"start"`
}

// Session is a bounded time window in which a fixed group of players,
// split into teams, is simulated.
type Session struct {
	ID         string                             `json:"sessionId"`
	Day        time.Time                          `json:"day"`
	StartTime  time.Time                          `json:"startTime"`
	EndTime    time.Time                          `json:"endTime"`
	Players    []string                           `json:"players"`
	Teams      []Team                             `json:"teams"`
	TeamOf     map[string]string                  `json:"teamOf"`
	Attributes map[string]PlayerSessionAttributes `json:"attributes"`
}

// SessionSummary is the per-player outcome of a session.
type SessionSummary struct {
	PlayerID           string    `json:"playerId"`
	SessionID          string    `json:"sessionId"`
	EventDateTime      time.Time `json:"eventDateTime"`
	Country            string    `json:"country"`
	EventLengthSeconds int       `json:"eventLengthSeconds"`
	Kills              int       `json:"kills"`
	Deaths             int       `json:"deaths"`
}

// SessionRecord is the unit handed to a storage backend: a session together
// with everything derived from it.
type SessionRecord struct {
	Session    *Session
	Heartbeats []Heartbeat
	Summaries  []SessionSummary
}

// SessionDocument is the raw JSON payload stored per session.
type SessionDocument struct {
	SessionID  string      `json:"sessionId"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    time.Time   `json:"endTime"`
	Heartbeats []Heartbeat `json:"heartbeats"`
}

// Document builds the raw JSON payload for the record.
func (r *SessionRecord) Document() SessionDocument {
	return SessionDocument{
		SessionID:  r.Session.ID,
		StartTime:  r.Session.StartTime,
		EndTime:    r.Session.EndTime,
		Heartbeats: r.Heartbeats,
	}
}
