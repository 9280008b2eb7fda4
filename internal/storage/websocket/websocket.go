package websocket

import (
	"log/slog"
	"sync/atomic"

	"github.com/OCAP2/telemetry-synth/pkg/core"
	"github.com/OCAP2/telemetry-synth/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams sessions over WebSocket to the ingest server.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn     *connection
	cfg      Config
	runID    atomic.Value
	sessions atomic.Int64
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// StartRun sends the run and roster and waits for server ack. The start_run
// frame is resent ahead of the replay after every reconnect until EndRun.
func (b *Backend) StartRun(run *core.Run, players []core.Player) error {
	b.runID.Store(run.ID)
	b.sessions.Store(0)

	seq, err := b.conn.enqueue(streaming.TypeStartRun, streaming.StartRunPayload{Run: run, Players: players})
	if err != nil {
		return err
	}
	return b.conn.waitAcked(seq, ackTimeout)
}

// RecordSession streams the session document and its summaries. It returns
// once the frame is queued; delivery is confirmed by later acks.
func (b *Backend) RecordSession(rec *core.SessionRecord) error {
	if _, err := b.conn.enqueue(streaming.TypeSession, streaming.SessionPayload{
		Document:  rec.Document(),
		Summaries: rec.Summaries,
	}); err != nil {
		return err
	}
	b.sessions.Add(1)
	return nil
}

// EndRun sends end_run and waits for its ack, which is cumulative and so
// covers every session sent before it.
func (b *Backend) EndRun() error {
	runID, _ := b.runID.Load().(string)
	defer b.conn.forgetRun()

	seq, err := b.conn.enqueue(streaming.TypeEndRun, streaming.EndRunPayload{
		RunID:    runID,
		Sessions: b.sessions.Load(),
	})
	if err != nil {
		return err
	}
	return b.conn.waitAcked(seq, ackTimeout)
}
