package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tacmap/tacsim/internal/engine"
)

// DefaultInterval between status reports.
const DefaultInterval = 30 * time.Second

// StatusSource reports the engine status.
type StatusSource interface {
	Status() engine.Status
}

// StatusSink receives each status sample, e.g. the Influx manager.
type StatusSink interface {
	RecordStatus(sessions, units, trackers int, lastTick time.Duration)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine     StatusSource
	Sink       StatusSink // optional
	Logger     *slog.Logger
	Interval   time.Duration
	StatusFile string // optional, rewritten with the latest report
}

// Report is one status sample.
type Report struct {
	Time       time.Time `json:"time"`
	Sessions   int       `json:"sessions"`
	Units      int       `json:"units"`
	Trackers   int       `json:"trackers"`
	LastTickMs float64   `json:"lastTickMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Collect takes one status sample and hands it to the sink and status file.
func (s *Service) Collect() Report {
	st := s.deps.Engine.Status()
	r := Report{
		Time:       time.Now().UTC(),
		Sessions:   st.Sessions,
		Units:      st.Units,
		Trackers:   st.Trackers,
		LastTickMs: float64(st.LastTick.Microseconds()) / 1000,
	}

	s.deps.Logger.Info("engine status",
		"sessions", r.Sessions,
		"units", r.Units,
		"trackers", r.Trackers,
		"lastTickMs", r.LastTickMs)

	if s.deps.Sink != nil {
		s.deps.Sink.RecordStatus(st.Sessions, st.Units, st.Trackers, st.LastTick)
	}
	if s.deps.StatusFile != "" {
		if err := s.writeStatusFile(r); err != nil {
			s.deps.Logger.Error("Error writing status file", "error", err)
		}
	}
	return r
}

func (s *Service) writeStatusFile(r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.deps.StatusFile, append(data, '\n'), 0o644)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Collect()
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
