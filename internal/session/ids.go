package session

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator derives session and team ids from a per-run namespace. Names
// never repeat within a run, so the ids don't either, and the generator
// holds no mutable state.
type IDGenerator struct {
	ns uuid.UUID
}

// NewIDGenerator returns a generator scoped to runID.
func NewIDGenerator(runID string) *IDGenerator {
	return &IDGenerator{ns: uuid.NewSHA1(uuid.NameSpaceURL, []byte("telemetry-synth/run/"+runID))}
}

// SessionID returns the id of the seq-th session assembled on day dayIndex.
func (g *IDGenerator) SessionID(dayIndex, seq int) string {
	return uuid.NewSHA1(g.ns, []byte(fmt.Sprintf("session/%d/%d", dayIndex, seq))).String()
}

// TeamID returns the id of the i-th team of a session.
func (g *IDGenerator) TeamID(sessionID string, i int) string {
	return uuid.NewSHA1(g.ns, []byte(fmt.Sprintf("team/%s/%d", sessionID, i))).String()
}
