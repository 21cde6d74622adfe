// Package spatial is a per-layer uniform grid over placed objects. It
// answers range and touch queries in time proportional to the local object
// density rather than the layer population.
package spatial

import (
	"math"
	"sort"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

const (
	// DefaultCellSize is the grid pitch in layout units.
	DefaultCellSize = 16.0

	// OversizeCells is the cell span above which an object is kept in the
	// layer's oversize list instead of the grid.
	OversizeCells = 1024
)

type cell struct {
	x, y int
}

type entry struct {
	obj      layout.PlacedObject
	bounds   geometry.Box
	oversize bool
}

type layerGrid struct {
	cells    map[cell][]layout.ObjectID
	oversize map[layout.ObjectID]struct{}
	members  map[layout.ObjectID]struct{}
}

func newLayerGrid() *layerGrid {
	return &layerGrid{
		cells:    make(map[cell][]layout.ObjectID),
		oversize: make(map[layout.ObjectID]struct{}),
		members:  make(map[layout.ObjectID]struct{}),
	}
}

// Index is a layer-partitioned grid. It is not safe for concurrent writes;
// Clone it to hand a read-only copy to another goroutine.
type Index struct {
	cellSize float64
	layers   map[int]*layerGrid
	entries  map[layout.ObjectID]*entry
}

// New creates an empty index. Non-positive cell sizes use DefaultCellSize.
func New(cellSize float64) *Index {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize: cellSize,
		layers:   make(map[int]*layerGrid),
		entries:  make(map[layout.ObjectID]*entry),
	}
}

// CellSize returns the grid pitch.
func (ix *Index) CellSize() float64 {
	return ix.cellSize
}

// Len returns the number of indexed objects.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// LayerLen returns the number of objects on one layer.
func (ix *Index) LayerLen(layer int) int {
	g, ok := ix.layers[layer]
	if !ok {
		return 0
	}
	return len(g.members)
}

// Get returns the indexed copy of an object.
func (ix *Index) Get(id layout.ObjectID) (layout.PlacedObject, bool) {
	e, ok := ix.entries[id]
	if !ok {
		return layout.PlacedObject{}, false
	}
	return e.obj, true
}

// Insert adds an object. Inserting an id that is already present replaces it.
func (ix *Index) Insert(obj layout.PlacedObject) {
	if _, ok := ix.entries[obj.ID]; ok {
		ix.Remove(obj.ID)
	}

	g, ok := ix.layers[obj.Layer]
	if !ok {
		g = newLayerGrid()
		ix.layers[obj.Layer] = g
	}

	e := &entry{obj: obj, bounds: obj.Shape.Bounds()}
	ix.entries[obj.ID] = e
	g.members[obj.ID] = struct{}{}

	x0, y0, x1, y1, n := ix.span(e.bounds)
	if n > OversizeCells {
		e.oversize = true
		g.oversize[obj.ID] = struct{}{}
		return
	}
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			c := cell{x, y}
			g.cells[c] = append(g.cells[c], obj.ID)
		}
	}
}

// Remove deletes an object. Unknown ids are ignored.
func (ix *Index) Remove(id layout.ObjectID) {
	e, ok := ix.entries[id]
	if !ok {
		return
	}
	delete(ix.entries, id)

	g := ix.layers[e.obj.Layer]
	delete(g.members, id)
	if e.oversize {
		delete(g.oversize, id)
		return
	}
	x0, y0, x1, y1, _ := ix.span(e.bounds)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			c := cell{x, y}
			ids := g.cells[c]
			for i, other := range ids {
				if other == id {
					ids[i] = ids[len(ids)-1]
					ids = ids[:len(ids)-1]
					break
				}
			}
			if len(ids) == 0 {
				delete(g.cells, c)
			} else {
				g.cells[c] = ids
			}
		}
	}
}

// Update replaces an object's indexed geometry and layer.
func (ix *Index) Update(obj layout.PlacedObject) {
	ix.Remove(obj.ID)
	ix.Insert(obj)
}

// QueryRange returns the objects on layer whose bounding box intersects box,
// sorted by id.
func (ix *Index) QueryRange(layer int, box geometry.Box) []layout.ObjectID {
	var out []layout.ObjectID
	ix.candidates(layer, box, func(e *entry) {
		if e.bounds.Intersects(box) {
			out = append(out, e.obj.ID)
		}
	})
	sortIDs(out)
	return out
}

// QueryTouching returns the objects on layer whose shape is within lambda of
// shape, sorted by id. An indexed object equal to the query is included.
func (ix *Index) QueryTouching(layer int, shape geometry.Shape, lambda float64) []layout.ObjectID {
	if lambda < 0 {
		lambda = 0
	}
	box := shape.Bounds().Grow(lambda)
	var out []layout.ObjectID
	ix.candidates(layer, box, func(e *entry) {
		if e.bounds.Intersects(box) && geometry.Touches(shape, e.obj.Shape, lambda) {
			out = append(out, e.obj.ID)
		}
	})
	sortIDs(out)
	return out
}

// candidates visits each object on layer that may intersect box exactly once.
func (ix *Index) candidates(layer int, box geometry.Box, visit func(*entry)) {
	g, ok := ix.layers[layer]
	if !ok || box.IsEmpty() {
		return
	}

	x0, y0, x1, y1, n := ix.span(box)
	if n > OversizeCells || n > float64(4*len(g.members)) {
		// The query covers more cells than a scan would touch.
		for id := range g.members {
			visit(ix.entries[id])
		}
		return
	}

	seen := make(map[layout.ObjectID]struct{})
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for _, id := range g.cells[cell{x, y}] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				visit(ix.entries[id])
			}
		}
	}
	for id := range g.oversize {
		visit(ix.entries[id])
	}
}

// span returns the inclusive cell range covering box and its cell count.
func (ix *Index) span(b geometry.Box) (x0, y0, x1, y1 int, n float64) {
	fx0 := math.Floor(b.Min.X / ix.cellSize)
	fy0 := math.Floor(b.Min.Y / ix.cellSize)
	fx1 := math.Floor(b.Max.X / ix.cellSize)
	fy1 := math.Floor(b.Max.Y / ix.cellSize)
	n = (fx1 - fx0 + 1) * (fy1 - fy0 + 1)
	if n > OversizeCells || math.IsNaN(n) {
		return 0, 0, 0, 0, math.Inf(1)
	}
	return int(fx0), int(fy0), int(fx1), int(fy1), n
}

// Clone returns a deep copy that shares no mutable state with ix.
func (ix *Index) Clone() *Index {
	out := &Index{
		cellSize: ix.cellSize,
		layers:   make(map[int]*layerGrid, len(ix.layers)),
		entries:  make(map[layout.ObjectID]*entry, len(ix.entries)),
	}
	for id, e := range ix.entries {
		c := *e
		out.entries[id] = &c
	}
	for layer, g := range ix.layers {
		ng := &layerGrid{
			cells:    make(map[cell][]layout.ObjectID, len(g.cells)),
			oversize: make(map[layout.ObjectID]struct{}, len(g.oversize)),
			members:  make(map[layout.ObjectID]struct{}, len(g.members)),
		}
		for c, ids := range g.cells {
			ng.cells[c] = append([]layout.ObjectID(nil), ids...)
		}
		for id := range g.oversize {
			ng.oversize[id] = struct{}{}
		}
		for id := range g.members {
			ng.members[id] = struct{}{}
		}
		out.layers[layer] = ng
	}
	return out
}

func sortIDs(ids []layout.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
