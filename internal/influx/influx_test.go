package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Enabled: false}, zerolog.Nop(), filepath.Join(t.TempDir(), "b.gz"))
	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, m.IsValid)
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	err := m.WritePoint(BucketSessions, DayPoint("r", time.Now(), 1, 1, 0, time.Second))
	require.Error(t, err)
}

func TestWritePoint_BackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), path)
	require.NoError(t, m.OpenBackup())

	end := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := &core.SessionRecord{
		Session: &core.Session{
			ID:      "s1",
			Day:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			EndTime: end,
			Players: []string{"a", "b"},
			Teams:   []core.Team{{ID: "t1"}},
		},
		Heartbeats: make([]core.Heartbeat, 5),
		Summaries:  []core.SessionSummary{{Kills: 3}, {Kills: 4}},
	}
	require.NoError(t, m.WritePoint(BucketSessions, SessionPoint("run1", rec)))
	require.NoError(t, m.WritePoint(BucketPerformance, DayPoint("run1", rec.Session.Day, 10, 2, 1, 1500*time.Millisecond)))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "session,day=2024-03-01,runId=run1 "))
	assert.Contains(t, lines[0], "kills=7i")
	assert.Contains(t, lines[0], "heartbeats=5i")
	assert.Contains(t, lines[0], `sessionId="s1"`)
	assert.True(t, strings.HasPrefix(lines[1], "day,runId=run1 "))
	assert.Contains(t, lines[1], "elapsedMs=1500i")
	assert.Contains(t, lines[1], "skipped=1i")
}
