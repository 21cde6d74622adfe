package connectivity

import (
	"sort"
	"time"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
)

// applyIncremental relinks the region formed by the old nets of the changed
// objects and the nets their new shapes touch. The region grows whenever a
// member links to an object outside it, so the result matches a full
// rebuild.
func (e *Engine) applyIncremental(changes []layout.Change) Stats {
	start := time.Now()
	e.gen.Add(1)
	old := e.nets

	// Replay the batch against the index. Only the final state of each
	// touched id matters.
	touched := make(map[layout.ObjectID]bool)
	for _, c := range changes {
		obj := c.After
		if obj == nil {
			obj = c.Before
		}
		if obj != nil && !obj.Connectable() {
			continue
		}
		touched[c.ID] = true

		e.index.Remove(c.ID)
		delete(e.diags, c.ID)
		delete(e.objects, c.ID)
		if c.After == nil {
			continue
		}
		o := *c.After
		e.objects[o.ID] = o
		if d := classify(o, e.layers); d != nil {
			e.diags[o.ID] = *d
			continue
		}
		e.index.Insert(o)
	}

	r := &region{
		old:     old,
		members: make(map[layout.ObjectID]bool),
		retired: make(map[string]bool),
	}
	l := &linker{layers: e.layers, index: e.index, lambda: e.cfg.Lambda}

	for id := range touched {
		r.retireNetOf(id)
		r.add(id)
	}
	for id := range touched {
		o, ok := e.objects[id]
		if !ok {
			continue
		}
		if _, indexed := e.index.Get(id); !indexed {
			continue
		}
		for _, n := range l.neighbours(o) {
			r.retireNetOf(n)
		}
	}

	// Close the region over links and union inside it.
	ds := netlist.NewDisjointSet()
	for len(r.queue) > 0 {
		id := r.queue[0]
		r.queue = r.queue[1:]

		o, ok := e.objects[id]
		if !ok {
			continue // removed
		}
		ds.Add(id)
		if _, indexed := e.index.Get(id); !indexed {
			continue
		}
		for _, n := range l.neighbours(o) {
			if !r.members[n] {
				r.retireNetOf(n)
				r.add(n)
			}
			ds.Union(id, n)
		}
	}

	retired := make([]string, 0, len(r.retired))
	for id := range r.retired {
		retired = append(retired, id)
	}
	sort.Strings(retired)
	e.nets = old.Replace(retired, ds.Groups())

	st := Stats{
		Mode:     "incremental",
		Changes:  len(changes),
		Region:   ds.Len(),
		Retired:  len(retired),
		Nets:     e.nets.Len(),
		Duration: time.Since(start),
	}
	e.logger.Debug("connectivity updated",
		"changes", st.Changes,
		"region", st.Region,
		"retired", st.Retired,
		"nets", st.Nets,
		"duration", st.Duration)
	return st
}

// region is the set of objects being relinked.
type region struct {
	old     *netlist.Model
	members map[layout.ObjectID]bool
	retired map[string]bool
	queue   []layout.ObjectID
}

func (r *region) add(id layout.ObjectID) {
	if r.members[id] {
		return
	}
	r.members[id] = true
	r.queue = append(r.queue, id)
}

// retireNetOf pulls the whole prior net of id into the region.
func (r *region) retireNetOf(id layout.ObjectID) {
	n, ok := r.old.NetOf(id)
	if !ok || r.retired[n.ID] {
		return
	}
	r.retired[n.ID] = true
	for _, m := range n.Members {
		r.add(m)
	}
}
