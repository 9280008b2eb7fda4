package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/generator"
	"github.com/OCAP2/telemetry-synth/internal/logging"
)

// ProgressSource reports how far a run has come.
type ProgressSource interface {
	Progress() generator.Progress
}

// QueueReporter is implemented by backends that buffer writes.
type QueueReporter interface {
	QueueLengths() map[string]int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Source     ProgressSource
	// Queues is optional; set it to the storage backend when it buffers.
	Queues     QueueReporter
	StatusPath string
	Interval   time.Duration
}

// Status is one snapshot written to the status file.
type Status struct {
	Time              time.Time          `json:"time"`
	Uptime            string             `json:"uptime"`
	Progress          generator.Progress `json:"progress"`
	SessionsPerSecond float64            `json:"sessionsPerSecond"`
	WriteQueues       map[string]int     `json:"writeQueues,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	started   time.Time
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current run status.
func (s *Service) GetStatus() Status {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	now := time.Now()
	st := Status{
		Time:     now.UTC(),
		Progress: s.deps.Source.Progress(),
	}
	if !started.IsZero() {
		up := now.Sub(started)
		st.Uptime = up.Round(time.Millisecond).String()
		if secs := up.Seconds(); secs > 0 {
			st.SessionsPerSecond = float64(st.Progress.Sessions) / secs
		}
	}
	if s.deps.Queues != nil {
		st.WriteQueues = s.deps.Queues.QueueLengths()
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Source == nil {
		s.mu.Unlock()
		return fmt.Errorf("monitor: no progress source")
	}
	s.isRunning = true
	s.started = time.Now()
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
	return nil
}

func (s *Service) loop() {
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		close(s.done)
	}()

	logger := s.deps.LogManager.Logger()
	logger.Debug("Starting status monitor goroutine", "function", "monitor.loop", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			// final snapshot so the file reflects the finished run
			s.report()
			return
		case <-ticker.C:
			s.report()
		}
	}
}

func (s *Service) report() {
	st := s.GetStatus()
	logger := s.deps.LogManager.Logger()
	logger.Debug("Run status",
		"sessions", st.Progress.Sessions,
		"skipped", st.Progress.Skipped,
		"heartbeats", st.Progress.Heartbeats,
		"sessionsPerSecond", st.SessionsPerSecond,
	)

	if s.deps.StatusPath == "" {
		return
	}
	if err := writeStatus(s.deps.StatusPath, st); err != nil {
		logger.Error("Error writing status file", "error", err, "path", s.deps.StatusPath)
	}
}

// writeStatus replaces the file through a rename so readers never see a
// half-written snapshot.
func writeStatus(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Stop stops the status monitor and waits for the final snapshot.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	done := s.done
	s.mu.Unlock()
	<-done
}
