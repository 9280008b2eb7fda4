// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// RunExport is the root JSON structure written at the end of a run.
type RunExport struct {
	Run       core.Run              `json:"run"`
	Players   []core.Player         `json:"players"`
	Sessions  []SessionFile         `json:"sessions"`
	Summaries []core.SessionSummary `json:"summaries"`
}

// sessionFileName names a raw session document after its id and end time.
func sessionFileName(s *core.Session, compress bool) string {
	name := fmt.Sprintf("%s_%s.json", s.ID, s.EndTime.UTC().Format("20060102_150405"))
	if compress {
		name += ".gz"
	}
	return name
}

// exportJSON writes the run manifest next to the session directory.
func (b *Backend) exportJSON() error {
	if b.run == nil {
		return fmt.Errorf("no run started")
	}
	export := b.buildExport()

	filename := fmt.Sprintf("run_%s_%s.json", b.run.ID, b.run.StartedAt.UTC().Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := writeJSON(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

// buildExport orders sessions by start time and summaries by session then
// player, since day workers record in no particular order.
func (b *Backend) buildExport() RunExport {
	sessions := append([]SessionFile(nil), b.sessions...)
	sortSessions(sessions)

	rank := make(map[string]int, len(sessions))
	for i, s := range sessions {
		rank[s.SessionID] = i
	}
	summaries := append([]core.SessionSummary(nil), b.summaries...)
	sort.SliceStable(summaries, func(i, j int) bool {
		ri, rj := rank[summaries[i].SessionID], rank[summaries[j].SessionID]
		if ri != rj {
			return ri < rj
		}
		return summaries[i].PlayerID < summaries[j].PlayerID
	})

	players := b.players
	if players == nil {
		players = []core.Player{}
	}
	if sessions == nil {
		sessions = []SessionFile{}
	}
	if summaries == nil {
		summaries = []core.SessionSummary{}
	}

	return RunExport{
		Run:       *b.run,
		Players:   players,
		Sessions:  sessions,
		Summaries: summaries,
	}
}

func sortSessions(sessions []SessionFile) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, c := sessions[i], sessions[j]
		if !a.startTime.Equal(c.startTime) {
			return a.startTime.Before(c.startTime)
		}
		return a.SessionID < c.SessionID
	})
}

// GetExportedFilePath returns the path of the last run manifest, empty
// before EndRun.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetSessionFilePaths returns the raw documents of the current run in
// session start order.
func (b *Backend) GetSessionFilePaths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sessions := append([]SessionFile(nil), b.sessions...)
	sortSessions(sessions)
	dir := b.sessionDir()
	paths := make([]string, len(sessions))
	for i, s := range sessions {
		paths[i] = filepath.Join(dir, s.File)
	}
	return paths
}

// GetExportMetadata describes the last exported run for upload.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta := core.UploadMetadata{Kind: "run", Sessions: len(b.sessions)}
	if b.run != nil {
		meta.RunID = b.run.ID
	}
	return meta
}

func writeJSON(path string, data any, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gzWriter := gzip.NewWriter(f)
		defer gzWriter.Close()
		w = gzWriter
	}

	encoder := json.NewEncoder(w)
	return encoder.Encode(data)
}
