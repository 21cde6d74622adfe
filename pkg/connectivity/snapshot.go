package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/spatial"
)

// ErrStale is returned by a worker whose snapshot was invalidated by an edit.
var ErrStale = errors.New("connectivity: snapshot is stale")

// Progress reports the state of a background rebuild.
type Progress struct {
	Phase string // "linking", "naming"
	Index int    // Objects processed so far
	Total int    // Objects in the snapshot
}

// Snapshot is an immutable copy of the engine state that a background
// goroutine may read while the edit goroutine keeps going.
type Snapshot struct {
	Token   Token
	Layers  layout.LayerStack
	Objects []layout.PlacedObject // connectable, sorted by id
	Nets    *netlist.Model
	Lambda  float64

	index *spatial.Index
	diags []Diagnostic
	gen   *atomic.Uint64
}

// Snapshot copies the current state. The copy shares only immutable data
// with the engine.
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{
		Token:   e.Generation(),
		Layers:  e.layers,
		Objects: e.Objects(),
		Nets:    e.nets,
		Lambda:  e.cfg.Lambda,
		index:   e.index.Clone(),
		diags:   e.Diagnostics(),
		gen:     e.gen,
	}
}

// Diagnostics returns the input inconsistencies at snapshot time.
func (s *Snapshot) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), s.diags...)
}

// Object returns a snapshot object by id.
func (s *Snapshot) Object(id layout.ObjectID) (layout.PlacedObject, bool) {
	i := sort.Search(len(s.Objects), func(i int) bool { return s.Objects[i].ID >= id })
	if i < len(s.Objects) && s.Objects[i].ID == id {
		return s.Objects[i], true
	}
	return layout.PlacedObject{}, false
}

// Stale reports whether the engine has moved past this snapshot.
func (s *Snapshot) Stale() bool {
	return s.gen != nil && Token(s.gen.Load()) != s.Token
}

// Result is the outcome of a background rebuild.
type Result struct {
	Token       Token
	Nets        *netlist.Model
	Diagnostics []Diagnostic
	Duration    time.Duration
}

// Worker recomputes the partition of a snapshot off the edit goroutine.
type Worker struct {
	logger   *slog.Logger
	progress chan<- Progress
}

// NewWorker creates a worker. progress may be nil.
func NewWorker(logger *slog.Logger, progress chan<- Progress) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{logger: logger, progress: progress}
}

// Rebuild computes a full partition of snap. It abandons the work, with no
// side effects, when ctx is cancelled or the snapshot goes stale.
func (w *Worker) Rebuild(ctx context.Context, snap *Snapshot) (*Result, error) {
	start := time.Now()
	in := &input{
		layers:  snap.Layers,
		objects: snap.Objects,
		index:   snap.index,
		diags:   snap.diags,
	}

	report := func(p Progress) {
		if w.progress == nil {
			return
		}
		select {
		case w.progress <- p:
		case <-ctx.Done():
		}
	}

	nets, err := in.rebuild(ctx, snap.Lambda, snap.Nets, snap.Stale, report)
	if err != nil {
		w.logger.Debug("background rebuild abandoned", "token", snap.Token, "error", err)
		return nil, err
	}
	return &Result{
		Token:       snap.Token,
		Nets:        nets,
		Diagnostics: snap.Diagnostics(),
		Duration:    time.Since(start),
	}, nil
}

// Apply swaps in a background result if it is still current. Stale results
// are dropped and Apply reports false.
func (e *Engine) Apply(r *Result) bool {
	if r == nil || r.Token != e.Generation() {
		return false
	}
	e.nets = r.Nets
	e.gen.Add(1)
	return true
}
