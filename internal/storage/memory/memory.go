// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// SessionFile points at the raw document written for one session.
type SessionFile struct {
	SessionID  string `json:"sessionId"`
	File       string `json:"file"`
	Players    int    `json:"players"`
	Heartbeats int    `json:"heartbeats"`

	startTime time.Time
}

// Backend writes one raw JSON document per session as it arrives and keeps
// summaries in memory until the run is exported.
type Backend struct {
	cfg     config.MemoryConfig
	run     *core.Run
	players []core.Player

	sessions  []SessionFile
	summaries []core.SessionSummary

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
	}
}

// Init ensures the output directory exists.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins collecting a new run.
func (b *Backend) StartRun(run *core.Run, players []core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = run
	b.players = append([]core.Player(nil), players...)

	// Reset all collections
	b.sessions = nil
	b.summaries = nil
	b.lastExportPath = ""

	return os.MkdirAll(b.sessionDir(), 0755)
}

// EndRun exports the run manifest and summaries.
func (b *Backend) EndRun() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.exportJSON()
}

// RecordSession writes the session's raw document and keeps its summaries.
func (b *Backend) RecordSession(rec *core.SessionRecord) error {
	b.mu.RLock()
	if b.run == nil {
		b.mu.RUnlock()
		return fmt.Errorf("session %s recorded before StartRun", rec.Session.ID)
	}
	dir := b.sessionDir()
	b.mu.RUnlock()

	name := sessionFileName(rec.Session, b.cfg.CompressOutput)
	if err := writeJSON(filepath.Join(dir, name), rec.Document(), b.cfg.CompressOutput); err != nil {
		return fmt.Errorf("failed to write session %s: %w", rec.Session.ID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, SessionFile{
		SessionID:  rec.Session.ID,
		File:       name,
		Players:    len(rec.Session.Players),
		Heartbeats: len(rec.Heartbeats),
		startTime:  rec.Session.StartTime,
	})
	b.summaries = append(b.summaries, rec.Summaries...)
	return nil
}

func (b *Backend) sessionDir() string {
	if b.run == nil {
		return b.cfg.OutputDir
	}
	return filepath.Join(b.cfg.OutputDir, b.run.ID)
}
