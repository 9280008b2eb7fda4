// internal/storage/memory/memory_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/storage"
	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Uploadable = (*Backend)(nil)
)

var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func testRecord(id string, offset time.Duration, players ...string) *core.SessionRecord {
	s := &core.Session{
		ID:        id,
		StartTime: base.Add(offset),
		EndTime:   base.Add(offset + 30*time.Minute),
		Players:   players,
	}
	rec := &core.SessionRecord{Session: s}
	for _, p := range players {
		rec.Heartbeats = append(rec.Heartbeats, core.Heartbeat{
			Timestamp: s.StartTime,
			PlayerID:  p,
			SessionID: id,
			TeamID:    "t1",
			PositionX: 1.25,
		})
		rec.Summaries = append(rec.Summaries, core.SessionSummary{
			PlayerID:           p,
			SessionID:          id,
			EventDateTime:      s.EndTime,
			Country:            "FR",
			EventLengthSeconds: 30,
			Kills:              1,
			Deaths:             1,
		})
	}
	return rec
}

func newStarted(t *testing.T, compress bool) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: compress})
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	run := &core.Run{ID: "run-1", Seed: 7, StartDate: base, Days: 1, Players: 2, StartedAt: base}
	if err := b.StartRun(run, []core.Player{{ID: "0001", Country: "FR"}, {ID: "0002", Country: "DE"}}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	return b, dir
}

func readJSON(t *testing.T, path string, compressed bool, v any) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var dec *json.Decoder
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		defer gz.Close()
		dec = json.NewDecoder(gz)
	} else {
		dec = json.NewDecoder(f)
	}
	if err := dec.Decode(v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestSessionFileName(t *testing.T) {
	s := &core.Session{ID: "abc", EndTime: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)}
	if got := sessionFileName(s, false); got != "abc_20240203_040506.json" {
		t.Errorf("sessionFileName = %q", got)
	}
	if got := sessionFileName(s, true); got != "abc_20240203_040506.json.gz" {
		t.Errorf("sessionFileName compressed = %q", got)
	}
}

func TestRecordSession_WritesDocument(t *testing.T) {
	b, dir := newStarted(t, false)

	rec := testRecord("s1", 0, "0001", "0002")
	if err := b.RecordSession(rec); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}

	path := filepath.Join(dir, "run-1", sessionFileName(rec.Session, false))
	var doc core.SessionDocument
	readJSON(t, path, false, &doc)

	if doc.SessionID != "s1" {
		t.Errorf("sessionId = %q", doc.SessionID)
	}
	if len(doc.Heartbeats) != 2 {
		t.Fatalf("expected 2 heartbeats, got %d", len(doc.Heartbeats))
	}
	if doc.Heartbeats[0].PositionX != 1.25 {
		t.Errorf("positionX = %v", doc.Heartbeats[0].PositionX)
	}
	if paths := b.GetSessionFilePaths(); len(paths) != 1 || paths[0] != path {
		t.Errorf("session paths = %v, want [%s]", paths, path)
	}
}

func TestRecordSession_BeforeStartRun(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	if err := b.RecordSession(testRecord("s1", 0, "0001")); err == nil {
		t.Error("expected error before StartRun")
	}
}

func TestEndRun_ExportsManifest(t *testing.T) {
	b, dir := newStarted(t, false)

	// recorded out of order, as parallel day workers would
	for _, rec := range []*core.SessionRecord{
		testRecord("late", 2*time.Hour, "0002", "0001"),
		testRecord("early", 0, "0001"),
	} {
		if err := b.RecordSession(rec); err != nil {
			t.Fatalf("RecordSession: %v", err)
		}
	}
	if err := b.EndRun(); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	path := b.GetExportedFilePath()
	if path != filepath.Join(dir, "run_run-1_20240115_103000.json") {
		t.Fatalf("export path = %q", path)
	}

	var export RunExport
	readJSON(t, path, false, &export)

	if export.Run.ID != "run-1" || export.Run.Seed != 7 {
		t.Errorf("run = %+v", export.Run)
	}
	if len(export.Players) != 2 {
		t.Errorf("players = %d", len(export.Players))
	}
	if len(export.Sessions) != 2 || export.Sessions[0].SessionID != "early" {
		t.Fatalf("sessions = %+v", export.Sessions)
	}
	if export.Sessions[1].Players != 2 || export.Sessions[1].Heartbeats != 2 {
		t.Errorf("late session = %+v", export.Sessions[1])
	}
	want := []string{"early/0001", "late/0001", "late/0002"}
	if len(export.Summaries) != len(want) {
		t.Fatalf("summaries = %d", len(export.Summaries))
	}
	for i, s := range export.Summaries {
		if got := s.SessionID + "/" + s.PlayerID; got != want[i] {
			t.Errorf("summary %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestEndRun_Compressed(t *testing.T) {
	b, dir := newStarted(t, true)

	rec := testRecord("s1", 0, "0001")
	if err := b.RecordSession(rec); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	if err := b.EndRun(); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	var doc core.SessionDocument
	readJSON(t, filepath.Join(dir, "run-1", sessionFileName(rec.Session, true)), true, &doc)
	if doc.SessionID != "s1" {
		t.Errorf("sessionId = %q", doc.SessionID)
	}

	var export RunExport
	readJSON(t, b.GetExportedFilePath(), true, &export)
	if len(export.Summaries) != 1 {
		t.Errorf("summaries = %d", len(export.Summaries))
	}
}

func TestEndRun_WithoutStart(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	if err := b.EndRun(); err == nil {
		t.Error("expected error")
	}
}

func TestGetExportedFilePath_BeforeExport(t *testing.T) {
	b, _ := newStarted(t, false)
	if path := b.GetExportedFilePath(); path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestGetExportMetadata(t *testing.T) {
	b, _ := newStarted(t, false)
	_ = b.RecordSession(testRecord("s1", 0, "0001"))
	_ = b.RecordSession(testRecord("s2", time.Hour, "0002"))

	meta := b.GetExportMetadata()
	if meta.RunID != "run-1" || meta.Kind != "run" || meta.Sessions != 2 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestGetSessionFilePaths_StartOrder(t *testing.T) {
	b, dir := newStarted(t, true)
	late := testRecord("late", time.Hour, "0001")
	early := testRecord("early", 0, "0002")
	for _, rec := range []*core.SessionRecord{late, early} {
		if err := b.RecordSession(rec); err != nil {
			t.Fatalf("RecordSession: %v", err)
		}
	}

	got := b.GetSessionFilePaths()
	want := []string{
		filepath.Join(dir, "run-1", sessionFileName(early.Session, true)),
		filepath.Join(dir, "run-1", sessionFileName(late.Session, true)),
	}
	if len(got) != len(want) {
		t.Fatalf("paths = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path %d = %s, want %s", i, got[i], want[i])
		}
		if _, err := os.Stat(got[i]); err != nil {
			t.Errorf("stat %s: %v", got[i], err)
		}
	}
}

func TestStartRun_Resets(t *testing.T) {
	b, _ := newStarted(t, false)
	_ = b.RecordSession(testRecord("s1", 0, "0001"))
	_ = b.EndRun()

	if err := b.StartRun(&core.Run{ID: "run-2", StartedAt: base}, nil); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if len(b.GetSessionFilePaths()) != 0 || b.GetExportedFilePath() != "" {
		t.Error("state not reset")
	}
}

func TestRecordSession_Concurrent(t *testing.T) {
	b, _ := newStarted(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i)) + "-session"
			if err := b.RecordSession(testRecord(id, time.Duration(i)*time.Minute, "0001")); err != nil {
				t.Errorf("RecordSession: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n := b.GetExportMetadata().Sessions; n != 20 {
		t.Errorf("sessions = %d", n)
	}
}
