// Package session ties a logic model to the connectivity engine, the rule
// check runner and the review store. A Session is owned by one edit
// goroutine; long rebuilds and check runs hand immutable snapshots to
// workers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/connectivity"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/review"
)

// Options configures a session. Zero values select defaults.
type Options struct {
	Engine    *connectivity.Config
	Registry  *erc.Registry
	CacheSize int // negative disables the net check cache
	Metrics   *erc.Metrics
	Layout    string // Labels this session's metrics; Open uses the path
	Logger    *slog.Logger
}

// Session is one open layout.
type Session struct {
	model  *layout.Model
	engine *connectivity.Engine
	runner *erc.Runner
	store  *review.Store
	logger *slog.Logger
	loaded bool
}

// LoadModel reads a layout file. .kicad_pcb boards are imported; anything
// else is read as a native layout.
func LoadModel(path string) (*layout.Model, error) {
	if strings.EqualFold(filepath.Ext(path), ".kicad_pcb") {
		return layout.ImportKiCadFile(path)
	}
	return layout.LoadFile(path)
}

// Open loads path and creates a session over it.
func Open(path string, opts Options) (*Session, error) {
	m, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	if opts.Layout == "" {
		opts.Layout = path
	}
	return New(m, opts)
}

// New creates a session over an existing model.
func New(model *layout.Model, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine, err := connectivity.NewEngine(opts.Engine, logger.With("component", "connectivity"))
	if err != nil {
		return nil, err
	}
	reg := opts.Registry
	if reg == nil {
		reg = erc.Builtins()
	}
	cacheSize := opts.CacheSize
	switch {
	case cacheSize == 0:
		cacheSize = erc.DefaultCacheSize
	case cacheSize < 0:
		cacheSize = 0
	}
	runner, err := erc.NewRunner(reg, erc.RunnerConfig{
		CacheSize: cacheSize,
		Metrics:   opts.Metrics,
		Layout:    opts.Layout,
		Logger:    logger.With("component", "erc"),
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		model:  model,
		engine: engine,
		runner: runner,
		store:  review.NewStore(),
		logger: logger,
	}, nil
}

// Model returns the logic model.
func (s *Session) Model() *layout.Model { return s.model }

// Engine returns the connectivity engine.
func (s *Session) Engine() *connectivity.Engine { return s.engine }

// Runner returns the rule check runner.
func (s *Session) Runner() *erc.Runner { return s.runner }

// Store returns the current review store.
func (s *Session) Store() *review.Store { return s.store }

// Nets returns the current net model.
func (s *Session) Nets() *netlist.Model { return s.engine.Nets() }

// Restore seeds review decisions, typically loaded from disk. They are
// matched against the next check run.
func (s *Session) Restore(prev *review.Store) {
	if prev != nil {
		s.store = prev
	}
}

// Sync brings connectivity up to date with the model's pending edits. The
// first call performs a full load.
func (s *Session) Sync() connectivity.Stats {
	if !s.loaded {
		s.model.DrainChanges()
		s.loaded = true
		return s.engine.Load(s.model)
	}
	return s.engine.ApplyChanges(s.model.DrainChanges())
}

// Refresh rebuilds connectivity from scratch with a worker over a
// snapshot and applies the result. It returns connectivity.ErrStale when
// the engine changed while the worker ran.
func (s *Session) Refresh(ctx context.Context, progress chan<- connectivity.Progress) error {
	s.Sync()
	w := connectivity.NewWorker(s.logger.With("component", "connectivity"), progress)
	res, err := w.Rebuild(ctx, s.engine.Snapshot())
	if err != nil {
		return err
	}
	if !s.engine.Apply(res) {
		return connectivity.ErrStale
	}
	s.Annotate(s.model)
	return nil
}

// Check syncs connectivity, runs the rule checks, reconciles the review
// store and writes net names and violation marks back to the model.
func (s *Session) Check(ctx context.Context) (review.Summary, error) {
	start := time.Now()
	s.Sync()
	vs, err := s.runner.Run(ctx, s.engine.Snapshot())
	if err != nil {
		return review.Summary{}, fmt.Errorf("session: check: %w", err)
	}
	s.store = review.Reconcile(s.store, vs)
	s.Annotate(s.model)

	sum := s.store.Summary()
	s.logger.Info("check complete",
		"nets", s.engine.Nets().Len(),
		"violations", sum.Total,
		"pending", sum.Pending,
		"duration", time.Since(start))
	return sum, nil
}

// Schedule syncs connectivity and asks sched to check the resulting
// snapshot in the background. Deliver the report with Publish.
func (s *Session) Schedule(sched *erc.Scheduler) connectivity.Token {
	s.Sync()
	snap := s.engine.Snapshot()
	sched.Request(snap)
	return snap.Token
}

// Publish reconciles a scheduled report into the review store. Reports
// that failed, or that describe a state the engine has since left, are
// ignored and Publish returns false.
func (s *Session) Publish(rep erc.Report) (review.Summary, bool) {
	if rep.Err != nil || rep.Token != s.engine.Generation() {
		return s.store.Summary(), false
	}
	s.store = review.Reconcile(s.store, rep.Violations)
	s.Annotate(s.model)
	return s.store.Summary(), true
}

// Accept marks violations accepted.
func (s *Session) Accept(ids ...string) error {
	for _, id := range ids {
		if err := s.store.Accept(id); err != nil {
			return err
		}
	}
	s.Annotate(s.model)
	return nil
}

// Reject marks violations rejected.
func (s *Session) Reject(ids ...string) error {
	for _, id := range ids {
		if err := s.store.Reject(id); err != nil {
			return err
		}
	}
	s.Annotate(s.model)
	return nil
}

// Rename gives a net a user-chosen name that survives later edits.
func (s *Session) Rename(netID, name string) error {
	if err := s.engine.Rename(netID, name); err != nil {
		return err
	}
	s.Annotate(s.model)
	return nil
}

// Annotate publishes net names for every object and marks the subjects of
// violations that are not rejected.
func (s *Session) Annotate(a layout.Annotator) {
	nets := s.engine.Nets()
	for _, n := range nets.Nets() {
		for _, id := range n.Members {
			a.SetNetName(id, n.Name)
		}
	}
	a.ClearViolationMarks()
	for _, v := range s.store.Filter(func(v erc.Violation) bool { return v.State != erc.Rejected }) {
		for _, id := range v.Subjects {
			a.MarkViolation(id, v.RuleKey)
		}
	}
}
