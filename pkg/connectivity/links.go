package connectivity

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/spatial"
)

// Diagnostic reports an object excluded from connectivity because its input
// is inconsistent. The object still forms a singleton net.
type Diagnostic struct {
	Object layout.ObjectID
	Layer  int
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s on layer %d: %s", d.Object, d.Layer, d.Reason)
}

// classify returns a diagnostic for objects that cannot be linked.
func classify(o layout.PlacedObject, layers layout.LayerStack) *Diagnostic {
	if !layers.Has(o.Layer) {
		return &Diagnostic{Object: o.ID, Layer: o.Layer, Reason: fmt.Sprintf("layer %d is not in the layer stack", o.Layer)}
	}
	if err := o.Shape.Validate(); err != nil {
		return &Diagnostic{Object: o.ID, Layer: o.Layer, Reason: err.Error()}
	}
	if o.Kind != layout.KindVia {
		return nil
	}

	reach := o.ViaDirection.Reach(o.Layer)
	found := 0
	for _, r := range reach {
		if layers.Has(r) {
			found++
		}
	}
	switch {
	case o.ViaDirection != layout.ViaUndefined && found == 0:
		return &Diagnostic{Object: o.ID, Layer: o.Layer,
			Reason: fmt.Sprintf("via %s reaches layer %d which is not in the layer stack", o.ViaDirection, reach[0])}
	case found == 0:
		return &Diagnostic{Object: o.ID, Layer: o.Layer, Reason: "via has no neighbouring layer"}
	}
	return nil
}

// linker answers which indexed objects an object is electrically joined to.
type linker struct {
	layers layout.LayerStack
	index  *spatial.Index
	lambda float64
}

// forward returns the links discovered from o's side: same-layer touches
// and, for vias, touches on the layers the via reaches. Every link in the
// layout is found by calling forward on at least one of its two ends.
func (l *linker) forward(o layout.PlacedObject) []layout.ObjectID {
	out := l.without(o.ID, l.index.QueryTouching(o.Layer, o.Shape, l.lambda))
	if o.Kind == layout.KindVia {
		for _, r := range o.ViaDirection.Reach(o.Layer) {
			if l.layers.Has(r) {
				out = append(out, l.index.QueryTouching(r, o.Shape, l.lambda)...)
			}
		}
	}
	return out
}

// neighbours returns every link of o, including vias on adjacent layers
// that reach o's layer.
func (l *linker) neighbours(o layout.PlacedObject) []layout.ObjectID {
	out := l.forward(o)
	for _, adj := range []int{o.Layer - 1, o.Layer + 1} {
		if !l.layers.Has(adj) {
			continue
		}
		for _, id := range l.index.QueryTouching(adj, o.Shape, l.lambda) {
			v, ok := l.index.Get(id)
			if !ok || v.Kind != layout.KindVia {
				continue
			}
			if reaches(v, o.Layer) {
				out = append(out, id)
			}
		}
	}
	return out
}

func reaches(via layout.PlacedObject, layer int) bool {
	for _, r := range via.ViaDirection.Reach(via.Layer) {
		if r == layer {
			return true
		}
	}
	return false
}

func (l *linker) without(id layout.ObjectID, ids []layout.ObjectID) []layout.ObjectID {
	out := ids[:0]
	for _, other := range ids {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}
