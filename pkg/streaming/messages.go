// Package streaming defines the wire messages of the websocket ingest protocol.
package streaming

import (
	"encoding/json"

	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartRun = "start_run"
	TypeSession  = "session"
	TypeEndRun   = "end_run"
)

// Envelope wraps all messages sent over the WebSocket. Seq numbers start at
// 1 per connection stream and increase by one per envelope. A sender may
// resend envelopes after a reconnect; receivers drop any Seq they have
// already applied.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response. Acks are cumulative:
// Seq confirms every envelope up to and including it.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
	Seq  uint64 `json:"seq"`
}

// StartRunPayload carries the run and its roster.
type StartRunPayload struct {
	Run     *core.Run     `json:"run"`
	Players []core.Player `json:"players"`
}

// SessionPayload carries the raw session document and its summaries.
type SessionPayload struct {
	Document  core.SessionDocument  `json:"document"`
	Summaries []core.SessionSummary `json:"summaries"`
}

// EndRunPayload tells the server how many sessions to expect.
type EndRunPayload struct {
	RunID    string `json:"runId"`
	Sessions int64  `json:"sessions"`
}
