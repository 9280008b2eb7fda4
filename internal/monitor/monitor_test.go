package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/generator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	sessions atomic.Int64
}

func (f *fakeSource) Progress() generator.Progress {
	n := f.sessions.Load()
	return generator.Progress{Sessions: n, Heartbeats: n * 10}
}

type fakeQueues map[string]int

func (f fakeQueues) QueueLengths() map[string]int { return f }

func readStatus(t *testing.T, path string) Status {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

func TestService_WritesStatusFile(t *testing.T) {
	src := &fakeSource{}
	src.sessions.Store(3)
	path := filepath.Join(t.TempDir(), "status.json")

	svc := NewService(Dependencies{
		Source:     src,
		Queues:     fakeQueues{"heartbeats": 42},
		StatusPath: path,
		Interval:   10 * time.Millisecond,
	})
	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	src.sessions.Store(7)
	svc.Stop()
	assert.False(t, svc.IsRunning())

	st := readStatus(t, path)
	assert.Equal(t, int64(7), st.Progress.Sessions)
	assert.Equal(t, int64(70), st.Progress.Heartbeats)
	assert.Equal(t, 42, st.WriteQueues["heartbeats"])
	assert.NotEmpty(t, st.Uptime)
}

func TestService_StartTwiceAndStopIdle(t *testing.T) {
	svc := NewService(Dependencies{Source: &fakeSource{}, Interval: time.Hour})

	svc.Stop() // not running: no-op

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start())
	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())
}

func TestService_NoSource(t *testing.T) {
	svc := NewService(Dependencies{})
	assert.Error(t, svc.Start())
	assert.False(t, svc.IsRunning())
}

func TestGetStatus_BeforeStart(t *testing.T) {
	src := &fakeSource{}
	src.sessions.Store(1)
	svc := NewService(Dependencies{Source: src})

	st := svc.GetStatus()
	assert.Equal(t, int64(1), st.Progress.Sessions)
	assert.Empty(t, st.Uptime)
	assert.Zero(t, st.SessionsPerSecond)
	assert.Nil(t, st.WriteQueues)
}

func TestWriteStatus_ReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, writeStatus(path, Status{Progress: generator.Progress{Sessions: 1}}))
	require.NoError(t, writeStatus(path, Status{Progress: generator.Progress{Sessions: 2}}))

	assert.Equal(t, int64(2), readStatus(t, path).Progress.Sessions)
	assert.NoFileExists(t, path+".tmp")
}
