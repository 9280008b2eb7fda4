// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/geo"
	"github.com/OCAP2/telemetry-synth/internal/model"
	"github.com/OCAP2/telemetry-synth/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// CoreToRun converts a core.Run to its row.
func CoreToRun(r core.Run) model.Run {
	return model.Run{
		ID:        r.ID,
		Seed:      r.Seed,
		StartDate: r.StartDate,
		Days:      r.Days,
		Players:   r.Players,
		StartedAt: r.StartedAt,
	}
}

// CoreToPlayers converts the roster of a run to rows.
func CoreToPlayers(runID string, players []core.Player) []model.Player {
	out := make([]model.Player, len(players))
	for i, p := range players {
		out[i] = model.Player{RunID: runID, PlayerID: p.ID, Country: p.Country}
	}
	return out
}

// CoreToEventSession wraps the record's raw document in a row.
func CoreToEventSession(runID string, rec *core.SessionRecord, createdAt time.Time) (model.EventSession, error) {
	raw, err := json.Marshal(rec.Document())
	if err != nil {
		return model.EventSession{}, fmt.Errorf("failed to marshal session %s: %w", rec.Session.ID, err)
	}
	return model.EventSession{
		RecordID:    rec.Session.ID,
		RunID:       runID,
		StartTime:   rec.Session.StartTime,
		EndTime:     rec.Session.EndTime,
		RawResponse: datatypes.JSON(raw),
		CreatedAt:   createdAt,
	}, nil
}

// EventSessionToDocument decodes a stored raw document.
func EventSessionToDocument(e model.EventSession) (core.SessionDocument, error) {
	var doc core.SessionDocument
	if err := json.Unmarshal(e.RawResponse, &doc); err != nil {
		return core.SessionDocument{}, fmt.Errorf("failed to decode session %s: %w", e.RecordID, err)
	}
	return doc, nil
}

// CoreToHeartbeats converts heartbeats to rows. Location is left empty
// when anchor is nil.
func CoreToHeartbeats(hbs []core.Heartbeat, anchor *geo.Anchor) []model.Heartbeat {
	out := make([]model.Heartbeat, len(hbs))
	for i, hb := range hbs {
		pos := hb.Position()
		location := geom.NewEmptyPoint(geom.DimXYZ)
		if anchor != nil {
			location = anchor.Project(pos)
		}
		out[i] = model.Heartbeat{
			Time:      hb.Timestamp,
			SessionID: hb.SessionID,
			PlayerID:  hb.PlayerID,
			TeamID:    hb.TeamID,
			Tick:      hb.Tick,
			Position:  geo.PointFromPosition(pos),
			Location:  location,
			PositionX: hb.PositionX,
			PositionY: hb.PositionY,
			PositionZ: hb.PositionZ,
		}
	}
	return out
}

// HeartbeatToCore converts a stored row back to a heartbeat.
func HeartbeatToCore(h model.Heartbeat) core.Heartbeat {
	return core.Heartbeat{
		Timestamp: h.Time,
		PlayerID:  h.PlayerID,
		SessionID: h.SessionID,
		TeamID:    h.TeamID,
		Tick:      h.Tick,
		PositionX: h.PositionX,
		PositionY: h.PositionY,
		PositionZ: h.PositionZ,
	}
}

// CoreToFactSessions converts summaries to rows.
func CoreToFactSessions(summaries []core.SessionSummary) []model.FactSession {
	out := make([]model.FactSession, len(summaries))
	for i, s := range summaries {
		out[i] = model.FactSession{
			PlayerID:           s.PlayerID,
			SessionID:          s.SessionID,
			EventDateTime:      s.EventDateTime,
			Country:            s.Country,
			EventLengthSeconds: s.EventLengthSeconds,
			Kills:              s.Kills,
			Deaths:             s.Deaths,
		}
	}
	return out
}
