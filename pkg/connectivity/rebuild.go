// Package connectivity infers nets from placed objects. Two objects share a
// net iff a chain of pairwise touching objects joins them, where touching
// across layers needs a via that reaches the other layer.
package connectivity

import (
	"context"
	"sort"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/spatial"
)

// checkInterval is how many objects are processed between cancellation checks.
const checkInterval = 256

// RebuildConnectivity computes the full partition of the connectable objects
// with fresh net names. Inconsistent objects become singleton nets and are
// reported as diagnostics.
func RebuildConnectivity(objects []layout.PlacedObject, layers layout.LayerStack, lambda float64) (*netlist.Model, []Diagnostic) {
	in := prepare(objects, layers, spatial.DefaultCellSize)
	nets, _ := in.rebuild(context.Background(), lambda, nil, nil, nil)
	return nets, in.diags
}

// input is a connectable object set ready for linking.
type input struct {
	layers  layout.LayerStack
	objects []layout.PlacedObject // connectable, sorted by id
	index   *spatial.Index        // excludes diagnosed objects
	diags   []Diagnostic
}

func prepare(objects []layout.PlacedObject, layers layout.LayerStack, cellSize float64) *input {
	in := &input{layers: layers, index: spatial.New(cellSize)}
	for _, o := range objects {
		if !o.Connectable() {
			continue
		}
		in.objects = append(in.objects, o)
		if d := classify(o, layers); d != nil {
			in.diags = append(in.diags, *d)
			continue
		}
		in.index.Insert(o)
	}
	sort.Slice(in.objects, func(i, j int) bool { return in.objects[i].ID < in.objects[j].ID })
	sortDiagnostics(in.diags)
	return in
}

// rebuild unions every link. It checks ctx and stale every checkInterval
// objects and returns early, without a model, when either trips.
func (in *input) rebuild(ctx context.Context, lambda float64, prev *netlist.Model, stale func() bool, progress func(Progress)) (*netlist.Model, error) {
	l := &linker{layers: in.layers, index: in.index, lambda: lambda}
	ds := netlist.NewDisjointSet()
	total := len(in.objects)

	for i, o := range in.objects {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if stale != nil && stale() {
				return nil, ErrStale
			}
			if progress != nil {
				progress(Progress{Phase: "linking", Index: i, Total: total})
			}
		}
		ds.Add(o.ID)
		if _, indexed := in.index.Get(o.ID); !indexed {
			continue
		}
		for _, other := range l.forward(o) {
			ds.Union(o.ID, other)
		}
	}

	if progress != nil {
		progress(Progress{Phase: "naming", Index: total, Total: total})
	}
	return netlist.Build(ds.Groups(), prev), nil
}

func sortDiagnostics(diags []Diagnostic) {
	sort.Slice(diags, func(i, j int) bool {
		if diags[i].Layer != diags[j].Layer {
			return diags[i].Layer < diags[j].Layer
		}
		return diags[i].Object < diags[j].Object
	})
}
