package layout

import (
	"fmt"
	"sort"
	"strings"
)

// LayerType tags what a chip layer shows.
type LayerType int

const (
	LayerUndefined LayerType = iota
	LayerMetal
	LayerLogic
	LayerTransistor
)

func (t LayerType) String() string {
	switch t {
	case LayerMetal:
		return "metal"
	case LayerLogic:
		return "logic"
	case LayerTransistor:
		return "transistor"
	default:
		return "undefined"
	}
}

// ParseLayerType converts a layer type name. Unknown names are an error.
func ParseLayerType(s string) (LayerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined":
		return LayerUndefined, nil
	case "metal":
		return LayerMetal, nil
	case "logic":
		return LayerLogic, nil
	case "transistor":
		return LayerTransistor, nil
	default:
		return LayerUndefined, fmt.Errorf("layout: unknown layer type %q", s)
	}
}

// Layer is one image layer of the chip.
type Layer struct {
	Index int       // Position in the stack (0 is the bottom)
	Type  LayerType // What the layer shows
	Name  string    // Optional display name
}

// LayerStack is an ordered, immutable set of layers. Vertical adjacency
// between layer k and k+1 is implied by the ordering.
type LayerStack struct {
	layers  []Layer
	byIndex map[int]int
}

// NewLayerStack creates a stack from the given layers, sorted by index.
// Duplicate indices are rejected.
func NewLayerStack(layers ...Layer) (LayerStack, error) {
	sorted := make([]Layer, len(layers))
	copy(sorted, layers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	ls := LayerStack{layers: sorted, byIndex: make(map[int]int, len(sorted))}
	for i, l := range sorted {
		if _, dup := ls.byIndex[l.Index]; dup {
			return LayerStack{}, fmt.Errorf("layout: duplicate layer index %d", l.Index)
		}
		ls.byIndex[l.Index] = i
	}
	return ls, nil
}

// MustLayerStack is NewLayerStack that panics on error, for tests and fixtures.
func MustLayerStack(layers ...Layer) LayerStack {
	ls, err := NewLayerStack(layers...)
	if err != nil {
		panic(err)
	}
	return ls
}

// Has reports whether the layer index exists.
func (ls LayerStack) Has(index int) bool {
	_, ok := ls.byIndex[index]
	return ok
}

// Get retrieves a layer by its index
func (ls LayerStack) Get(index int) (Layer, bool) {
	i, ok := ls.byIndex[index]
	if !ok {
		return Layer{}, false
	}
	return ls.layers[i], true
}

// Layers returns a copy of the layers, bottom first.
func (ls LayerStack) Layers() []Layer {
	out := make([]Layer, len(ls.layers))
	copy(out, ls.layers)
	return out
}

// Len returns the number of layers.
func (ls LayerStack) Len() int {
	return len(ls.layers)
}

// FirstOfType returns the lowest layer with the given type.
func (ls LayerStack) FirstOfType(t LayerType) (Layer, bool) {
	for _, l := range ls.layers {
		if l.Type == t {
			return l, true
		}
	}
	return Layer{}, false
}
