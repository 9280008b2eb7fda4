package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Run{},
	&Player{},
	&EventSession{},
	&Heartbeat{},
	&FactSession{},
}

// SessionTables are cleared, children first, when a rerun truncates prior output.
var SessionTables = []interface{}{
	&Heartbeat{},
	&FactSession{},
	&EventSession{},
	&Player{},
	&Run{},
}

////////////////////////
// RUN MODELS
////////////////////////

// Run is one invocation of the generator.
type Run struct {
	ID         string     `json:"runId" gorm:"primarykey;size:36"`
	Seed       uint64     `json:"seed"`
	StartDate  time.Time  `json:"startDate"`
	Days       int        `json:"days"`
	Players    int        `json:"players"`
	StartedAt  time.Time  `json:"startedAt" gorm:"index:idx_run_started_at"`
	FinishedAt *time.Time `json:"finishedAt"`
	Sessions   int        `json:"sessions"`
	Heartbeats int        `json:"heartbeats"`
}

func (*Run) TableName() string {
	return "runs"
}

// Player is a roster entry.
type Player struct {
	RunID    string `json:"runId" gorm:"primarykey;size:36"`
	PlayerID string `json:"playerId" gorm:"primarykey;size:16"`
	Country  string `json:"country" gorm:"size:16"`
}

func (*Player) TableName() string {
	return "players"
}

////////////////////////
// SESSION MODELS
////////////////////////

// EventSession holds the raw JSON document of one session.
type EventSession struct {
	RecordID    string         `json:"recordId" gorm:"primarykey;size:36"`
	RunID       string         `json:"runId" gorm:"size:36;index:idx_eventsession_run_id"`
	StartTime   time.Time      `json:"startTime" gorm:"index:idx_eventsession_start_time"`
	EndTime     time.Time      `json:"endTime"`
	RawResponse datatypes.JSON `json:"rawResponse"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (*EventSession) TableName() string {
	return "event_sessions"
}

// Heartbeat is one position sample. Position holds arena coordinates;
// Location holds the same sample projected to web mercator around the
// configured arena anchor.
type Heartbeat struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time" gorm:"index:idx_heartbeat_time"`
	SessionID string     `json:"sessionId" gorm:"size:36;index:idx_heartbeat_session_id"`
	PlayerID  string     `json:"playerId" gorm:"size:16;index:idx_heartbeat_player_id"`
	TeamID    string     `json:"teamId" gorm:"size:36"`
	Tick      int        `json:"tick" gorm:"index:idx_heartbeat_tick"`
	Position  geom.Point `json:"position"`
	Location  geom.Point `json:"location"`
	PositionX float64    `json:"positionX"`
	PositionY float64    `json:"positionY"`
	PositionZ float64    `json:"positionZ"`
}

func (*Heartbeat) TableName() string {
	return "heartbeats"
}

// FactSession is the per-player summary of a session.
type FactSession struct {
	ID                 uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	PlayerID           string    `json:"playerId" gorm:"size:16;index:idx_factsession_player_id"`
	SessionID          string    `json:"sessionId" gorm:"size:36;index:idx_factsession_session_id"`
	EventDateTime      time.Time `json:"eventDateTime"`
	Country            string    `json:"country" gorm:"size:16"`
	EventLengthSeconds int       `json:"eventLengthSeconds"`
	Kills              int       `json:"kills"`
	Deaths             int       `json:"deaths"`
}

func (*FactSession) TableName() string {
	return "fact_sessions"
}
