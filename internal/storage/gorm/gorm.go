// Package gormstorage implements the storage.Backend interface on top of GORM
// with internal queues and a background DB writer goroutine. The postgres and
// sqlite backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/database"
	"github.com/OCAP2/telemetry-synth/internal/geo"
	"github.com/OCAP2/telemetry-synth/internal/logging"
	"github.com/OCAP2/telemetry-synth/internal/model"
	"github.com/OCAP2/telemetry-synth/internal/model/convert"
	"github.com/OCAP2/telemetry-synth/internal/queue"
	"github.com/OCAP2/telemetry-synth/pkg/core"

	"gorm.io/gorm"
)

const (
	// DefaultBatchSize is used when Dependencies.BatchSize is not positive.
	DefaultBatchSize = 2000
	writeInterval    = 2 * time.Second
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	// Anchor projects heartbeat positions for the location column; nil leaves it empty.
	Anchor    *geo.Anchor
	BatchSize int
	// Truncate clears rows of earlier runs in StartRun.
	Truncate bool
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Sessions   *queue.Queue[model.EventSession]
	Heartbeats *queue.Queue[model.Heartbeat]
	Summaries  *queue.Queue[model.FactSession]
}

func newQueues() *queues {
	return &queues{
		Sessions:   queue.New[model.EventSession](),
		Heartbeats: queue.New[model.Heartbeat](),
		Summaries:  queue.New[model.FactSession](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	runMu sync.Mutex
	runID string

	sessions   atomic.Int64
	heartbeats atomic.Int64

	stopChan  chan struct{}
	flushReq  chan chan error
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	return &Backend{
		deps: deps,
	}
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// QueueLengths reports rows waiting for the writer, by table.
func (b *Backend) QueueLengths() map[string]int {
	if b == nil || b.queues == nil {
		return nil
	}
	return map[string]int{
		"event_sessions": b.queues.Sessions.Len(),
		"heartbeats":     b.queues.Heartbeats.Len(),
		"fact_sessions":  b.queues.Summaries.Len(),
	}
}

// Init creates internal queues, migrates the schema and starts the DB writer
// goroutine. Without a DB the backend only queues.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.flushReq = make(chan chan error)
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}

	if err := database.Setup(b.deps.DB, b.deps.LogManager.Logger()); err != nil {
		close(b.done)
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	go b.runWriter()
	return nil
}

// Close flushes what is still queued and stops the DB writer goroutine.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		err = b.Flush()
		close(b.stopChan)
		<-b.done
	})
	return err
}

// StartRun clears earlier output when configured and inserts the run and its
// roster synchronously.
func (b *Backend) StartRun(run *core.Run, players []core.Player) error {
	b.runMu.Lock()
	b.runID = run.ID
	b.runMu.Unlock()
	b.sessions.Store(0)
	b.heartbeats.Store(0)

	db := b.deps.DB
	if db == nil {
		return nil
	}

	if b.deps.Truncate {
		if err := database.Truncate(db); err != nil {
			return fmt.Errorf("failed to truncate previous runs: %w", err)
		}
		b.deps.LogManager.WriteLog("StartRun", "Cleared previous run data", "INFO")
	}

	gormRun := convert.CoreToRun(*run)
	if err := db.Create(&gormRun).Error; err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	rows := convert.CoreToPlayers(run.ID, players)
	if len(rows) > 0 {
		if err := db.CreateInBatches(&rows, b.deps.BatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert players: %w", err)
		}
	}
	return nil
}

// RecordSession converts a record and pushes its rows to the write queues.
func (b *Backend) RecordSession(rec *core.SessionRecord) error {
	b.runMu.Lock()
	runID := b.runID
	b.runMu.Unlock()

	session, err := convert.CoreToEventSession(runID, rec, time.Now().UTC())
	if err != nil {
		return err
	}

	b.queues.Sessions.Push(session)
	b.queues.Heartbeats.Push(convert.CoreToHeartbeats(rec.Heartbeats, b.deps.Anchor)...)
	b.queues.Summaries.Push(convert.CoreToFactSessions(rec.Summaries)...)

	b.sessions.Add(1)
	b.heartbeats.Add(int64(len(rec.Heartbeats)))
	return nil
}

// EndRun flushes the queues and stamps the run with its totals.
func (b *Backend) EndRun() error {
	if err := b.Flush(); err != nil {
		return err
	}
	if b.deps.DB == nil {
		return nil
	}

	b.runMu.Lock()
	runID := b.runID
	b.runMu.Unlock()

	finished := time.Now().UTC()
	err := b.deps.DB.Model(&model.Run{}).Where("id = ?", runID).Updates(map[string]any{
		"finished_at": finished,
		"sessions":    b.sessions.Load(),
		"heartbeats":  b.heartbeats.Load(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}

// Flush blocks until everything queued so far has been written.
func (b *Backend) Flush() error {
	if b.deps.DB == nil || b.flushReq == nil {
		return nil
	}
	reply := make(chan error, 1)
	select {
	case b.flushReq <- reply:
		return <-reply
	case <-b.done:
		return errors.New("db writer stopped")
	}
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, batchSize int, log func(string, string, string)) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&items, batchSize).Error
	})
	if err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		q.PushFront(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// writeAll drains every queue, sessions first.
func (b *Backend) writeAll() error {
	log := b.deps.LogManager.WriteLog
	db := b.deps.DB
	size := b.deps.BatchSize

	return errors.Join(
		writeQueue(db, b.queues.Sessions, "event sessions", size, log),
		writeQueue(db, b.queues.Heartbeats, "heartbeats", size, log),
		writeQueue(db, b.queues.Summaries, "fact sessions", size, log),
	)
}

// runWriter drains the queues on a timer, whenever heartbeats pile up past a
// batch, and on explicit flush requests.
func (b *Backend) runWriter() {
	defer close(b.done)

	ticker := time.NewTicker(writeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case reply := <-b.flushReq:
			reply <- b.writeAll()
		case <-b.queues.Heartbeats.Ready():
			if b.queues.Heartbeats.Len() >= b.deps.BatchSize {
				_ = b.writeAll()
			}
		case <-ticker.C:
			_ = b.writeAll()
		}
	}
}
