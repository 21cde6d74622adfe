package erc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/connectivity"
)

// State is the scheduler's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Report is the outcome of one scheduled run.
type Report struct {
	Token      connectivity.Token
	Violations []Violation
	Err        error
	Duration   time.Duration
}

// Scheduler runs checks one at a time. Requests made while a run is in
// flight collapse into a single follow-up run on the latest snapshot.
type Scheduler struct {
	runner *Runner
	ctx    context.Context
	notify func(Report)
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	pending *connectivity.Snapshot
	last    *Report
	idle    chan struct{}
}

// NewScheduler creates a scheduler. Runs use ctx; notify, if set, is called
// from the run goroutine after every run that was not superseded.
func NewScheduler(ctx context.Context, runner *Runner, notify func(Report)) *Scheduler {
	return &Scheduler{
		runner: runner,
		ctx:    ctx,
		notify: notify,
		logger: runner.logger,
	}
}

// Request schedules a run on snap.
func (s *Scheduler) Request(snap *connectivity.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.logger.Debug("rule check request coalesced", "token", snap.Token)
	}
	s.pending = snap
	if s.state == StateRunning {
		return
	}
	s.state = StateRunning
	s.idle = make(chan struct{})
	go s.loop()
}

func (s *Scheduler) loop() {
	for {
		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		if snap == nil {
			s.state = StateDone
			close(s.idle)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		start := time.Now()
		vs, err := s.runner.Run(s.ctx, snap)
		rep := Report{Token: snap.Token, Violations: vs, Err: err, Duration: time.Since(start)}

		s.mu.Lock()
		superseded := s.pending != nil && errors.Is(err, connectivity.ErrStale)
		if !superseded {
			s.last = &rep
		}
		s.mu.Unlock()

		if superseded {
			s.logger.Debug("rule check run superseded", "token", snap.Token)
			continue
		}
		if err != nil {
			s.logger.Warn("rule check run aborted", "token", snap.Token, "error", err)
		}
		if s.notify != nil {
			s.notify(rep)
		}
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recent report.
func (s *Scheduler) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// Wait blocks until no run is in flight or pending and returns the last
// report.
func (s *Scheduler) Wait(ctx context.Context) (Report, error) {
	s.mu.Lock()
	idle := s.idle
	running := s.state == StateRunning
	s.mu.Unlock()

	if running {
		select {
		case <-idle:
		case <-ctx.Done():
			return Report{}, ctx.Err()
		}
	}
	rep, ok := s.Last()
	if !ok {
		return Report{}, errors.New("erc: no run scheduled")
	}
	return rep, nil
}
