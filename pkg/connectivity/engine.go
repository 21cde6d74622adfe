package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/spatial"
)

// Token identifies the engine state a snapshot was taken from.
type Token uint64

// Stats describes one recompute.
type Stats struct {
	Mode     string // "full" or "incremental"
	Changes  int    // Changes in the batch
	Region   int    // Objects relinked
	Retired  int    // Prior nets replaced
	Nets     int    // Nets after the recompute
	Duration time.Duration
}

// Engine keeps the net model in step with an edited logic model. It is
// owned by the single edit goroutine; only Snapshot results may cross to
// other goroutines.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	layers  layout.LayerStack
	objects map[layout.ObjectID]layout.PlacedObject // connectable objects
	index   *spatial.Index
	diags   map[layout.ObjectID]Diagnostic
	nets    *netlist.Model

	gen *atomic.Uint64
}

// NewEngine creates an engine with no objects. A nil cfg uses DefaultConfig.
func NewEngine(cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("connectivity: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     c,
		logger:  logger,
		objects: make(map[layout.ObjectID]layout.PlacedObject),
		index:   spatial.New(c.GridCellSize),
		diags:   make(map[layout.ObjectID]Diagnostic),
		nets:    netlist.Empty(),
		gen:     new(atomic.Uint64),
	}, nil
}

// Config returns the validated configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Load replaces the engine state with a full rebuild of src. Net names are
// inherited from the previous model by majority overlap.
func (e *Engine) Load(src layout.Source) Stats {
	start := time.Now()
	e.gen.Add(1)

	in := prepare(src.Objects(), src.Layers(), e.cfg.GridCellSize)
	nets, _ := in.rebuild(context.Background(), e.cfg.Lambda, e.nets, nil, nil)

	e.layers = in.layers
	e.index = in.index
	e.objects = make(map[layout.ObjectID]layout.PlacedObject, len(in.objects))
	for _, o := range in.objects {
		e.objects[o.ID] = o
	}
	e.diags = make(map[layout.ObjectID]Diagnostic, len(in.diags))
	for _, d := range in.diags {
		e.diags[d.Object] = d
	}
	retired := e.nets.Len()
	e.nets = nets

	st := Stats{Mode: "full", Region: len(in.objects), Retired: retired, Nets: nets.Len(), Duration: time.Since(start)}
	e.logger.Debug("connectivity rebuilt",
		"objects", len(in.objects),
		"nets", st.Nets,
		"diagnostics", len(in.diags),
		"duration", st.Duration)
	return st
}

// Nets returns the current net model. It is never partially updated.
func (e *Engine) Nets() *netlist.Model {
	return e.nets
}

// Layers returns the layer stack of the last load.
func (e *Engine) Layers() layout.LayerStack {
	return e.layers
}

// Object returns a connectable object known to the engine.
func (e *Engine) Object(id layout.ObjectID) (layout.PlacedObject, bool) {
	o, ok := e.objects[id]
	return o, ok
}

// Objects returns the connectable objects sorted by id.
func (e *Engine) Objects() []layout.PlacedObject {
	out := make([]layout.PlacedObject, 0, len(e.objects))
	for _, o := range e.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Diagnostics returns the current input inconsistencies sorted by layer
// then object id.
func (e *Engine) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, 0, len(e.diags))
	for _, d := range e.diags {
		out = append(out, d)
	}
	sortDiagnostics(out)
	return out
}

// Rename gives a net a user-assigned name.
func (e *Engine) Rename(netID, name string) error {
	nets, err := e.nets.Rename(netID, name)
	if err != nil {
		return err
	}
	e.nets = nets
	e.gen.Add(1)
	return nil
}

// Generation returns the current state token.
func (e *Engine) Generation() Token {
	return Token(e.gen.Load())
}

// ApplyChanges brings the net model up to date with a batch of edits.
// Small batches relink only the nets around the changed objects; large
// batches, or engines with incremental recompute disabled, rebuild fully.
func (e *Engine) ApplyChanges(changes []layout.Change) Stats {
	if len(changes) == 0 {
		return Stats{Mode: "incremental", Nets: e.nets.Len()}
	}
	if !e.cfg.Incremental || len(changes) > e.cfg.IncrementalLimit {
		st := e.Load(e.source(changes))
		st.Changes = len(changes)
		return st
	}
	return e.applyIncremental(changes)
}

// source replays changes over the engine's objects for a full rebuild.
func (e *Engine) source(changes []layout.Change) layout.Source {
	objs := make(map[layout.ObjectID]layout.PlacedObject, len(e.objects))
	for id, o := range e.objects {
		objs[id] = o
	}
	for _, c := range changes {
		if c.After == nil {
			delete(objs, c.ID)
		} else {
			objs[c.ID] = *c.After
		}
	}
	list := make([]layout.PlacedObject, 0, len(objs))
	for _, o := range objs {
		list = append(list, o)
	}
	return staticSource{layers: e.layers, objects: list}
}

type staticSource struct {
	layers  layout.LayerStack
	objects []layout.PlacedObject
}

func (s staticSource) Layers() layout.LayerStack      { return s.layers }
func (s staticSource) Objects() []layout.PlacedObject { return s.objects }
