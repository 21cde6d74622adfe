package connectivity

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
)

func stack(n int) layout.LayerStack {
	layers := make([]layout.Layer, n)
	for i := range layers {
		layers[i] = layout.Layer{Index: i, Type: layout.LayerMetal}
	}
	return layout.MustLayerStack(layers...)
}

func vec(x, y float64) r2.Vec { return r2.Vec{X: x, Y: y} }

func sameNet(t *testing.T, m *netlist.Model, a, b layout.ObjectID) bool {
	t.Helper()
	na, ok := m.NetOf(a)
	require.True(t, ok, "object %s has no net", a)
	nb, ok := m.NetOf(b)
	require.True(t, ok, "object %s has no net", b)
	return na.ID == nb.ID
}

func newEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.GridCellSize = 4
	if mutate != nil {
		mutate(cfg)
	}
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return e
}

func TestWiresWithinLambdaShareANet(t *testing.T) {
	m := layout.NewModel(stack(2))
	w1, _ := m.AddWire(1, vec(0, 0), vec(10, 0), 0, "w1")
	w2, _ := m.AddWire(1, vec(10.4, 0), vec(20, 0), 0, "w2")

	nets, diags := RebuildConnectivity(m.Objects(), m.Layers(), 0.5)
	assert.Empty(t, diags)
	assert.True(t, sameNet(t, nets, w1, w2))
	assert.Equal(t, 1, nets.Len())

	nets, _ = RebuildConnectivity(m.Objects(), m.Layers(), 0.3)
	assert.False(t, sameNet(t, nets, w1, w2))
	assert.Equal(t, 2, nets.Len())
	for _, n := range nets.Nets() {
		assert.Equal(t, 1, n.Size())
	}
}

func TestViaDirectionGating(t *testing.T) {
	build := func(dir layout.ViaDirection) (*netlist.Model, [3]layout.ObjectID) {
		m := layout.NewModel(stack(3))
		var w [3]layout.ObjectID
		for k := 0; k < 3; k++ {
			w[k], _ = m.AddWire(k, vec(0, 0), vec(10, 0), 1, "")
		}
		_, err := m.AddVia(1, vec(5, 0), 1, dir, "v")
		require.NoError(t, err)
		nets, diags := RebuildConnectivity(m.Objects(), m.Layers(), 0)
		require.Empty(t, diags)
		return nets, w
	}

	nets, w := build(layout.ViaUp)
	assert.True(t, sameNet(t, nets, w[1], w[2]))
	assert.False(t, sameNet(t, nets, w[0], w[1]), "an up via does not reach the layer below")

	nets, w = build(layout.ViaDown)
	assert.True(t, sameNet(t, nets, w[0], w[1]))
	assert.False(t, sameNet(t, nets, w[1], w[2]), "a down via does not reach the layer above")

	nets, w = build(layout.ViaUndefined)
	assert.True(t, sameNet(t, nets, w[0], w[2]))
}

func TestDifferentLayersNeedAVia(t *testing.T) {
	m := layout.NewModel(stack(2))
	a, _ := m.AddWire(0, vec(0, 0), vec(10, 0), 1, "")
	b, _ := m.AddWire(1, vec(0, 0), vec(10, 0), 1, "")
	nets, _ := RebuildConnectivity(m.Objects(), m.Layers(), 0.5)
	assert.False(t, sameNet(t, nets, a, b))
}

func TestInconsistentInputBecomesDiagnostic(t *testing.T) {
	m := layout.NewModel(stack(2))
	w, _ := m.AddWire(1, vec(0, 0), vec(10, 0), 1, "")
	ghost, _ := m.AddWire(7, vec(0, 0), vec(10, 0), 1, "")
	topVia, _ := m.AddVia(1, vec(5, 0), 1, layout.ViaUp, "")
	note, _ := m.AddAnnotation(1, geometry.Rect(0, 0, 10, 10), "")

	nets, diags := RebuildConnectivity(m.Objects(), m.Layers(), 0.5)
	require.Len(t, diags, 2)
	assert.Equal(t, topVia, diags[0].Object, "sorted by layer")
	assert.Equal(t, ghost, diags[1].Object)
	assert.Contains(t, diags[1].Reason, "not in the layer stack")

	assert.False(t, sameNet(t, nets, w, topVia), "excluded objects stay singletons")
	assert.Equal(t, 3, nets.ObjectCount(), "annotations are not partitioned")
	_, ok := nets.NetOf(note)
	assert.False(t, ok)
}

func TestPartitionMatchesGraphComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	layers := stack(4)
	var objs []layout.PlacedObject
	for i := 1; i <= 300; i++ {
		objs = append(objs, randomObject(rng, layout.ObjectID(i)))
	}
	const lambda = 0.4

	nets, diags := RebuildConnectivity(objs, layers, lambda)
	require.Empty(t, diags)

	g := simple.NewUndirectedGraph()
	for _, o := range objs {
		g.AddNode(simple.Node(o.ID))
	}
	for i := range objs {
		for j := i + 1; j < len(objs); j++ {
			if linked(objs[i], objs[j], lambda) {
				g.SetEdge(g.NewEdge(simple.Node(objs[i].ID), simple.Node(objs[j].ID)))
			}
		}
	}
	components := topo.ConnectedComponents(g)

	require.Equal(t, len(components), nets.Len())
	total := 0
	for _, comp := range components {
		first := layout.ObjectID(comp[0].ID())
		net, ok := nets.NetOf(first)
		require.True(t, ok)
		assert.Equal(t, len(comp), net.Size())
		for _, n := range comp {
			assert.True(t, net.Contains(layout.ObjectID(n.ID())))
		}
		total += len(comp)
	}
	assert.Equal(t, len(objs), total)
	assert.Equal(t, len(objs), nets.ObjectCount())
}

// linked is the brute force touch relation the engine must agree with.
func linked(a, b layout.PlacedObject, lambda float64) bool {
	if !geometry.Touches(a.Shape, b.Shape, lambda) {
		return false
	}
	if a.Layer == b.Layer {
		return true
	}
	return (a.Kind == layout.KindVia && reaches(a, b.Layer)) ||
		(b.Kind == layout.KindVia && reaches(b, a.Layer))
}

func randomObject(rng *rand.Rand, id layout.ObjectID) layout.PlacedObject {
	x, y := rng.Float64()*60, rng.Float64()*60
	if rng.Intn(4) == 0 {
		dir := layout.ViaDirection(rng.Intn(3))
		layer := 1 + rng.Intn(2)
		switch dir {
		case layout.ViaUp:
			layer = rng.Intn(3)
		case layout.ViaDown:
			layer = 1 + rng.Intn(3)
		}
		return layout.PlacedObject{ID: id, Kind: layout.KindVia, Layer: layer,
			Shape: geometry.Point(vec(x, y), 1), ViaDirection: dir}
	}
	return layout.PlacedObject{ID: id, Kind: layout.KindWire, Layer: rng.Intn(4),
		Shape: geometry.Segment(vec(x, y), vec(x+rng.Float64()*8-4, y+rng.Float64()*8-4), rng.Float64())}
}

func TestIncrementalMatchesFullRebuild(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := layout.NewModel(stack(4))
	for i := 0; i < 150; i++ {
		o := randomObject(rng, 0)
		_, err := m.AddObject(o)
		require.NoError(t, err)
	}
	m.DrainChanges()

	e := newEngine(t, func(c *Config) { c.Lambda = 0.4 })
	e.Load(m)

	for round := 0; round < 40; round++ {
		objs := m.Objects()
		for k := 0; k < 1+rng.Intn(3); k++ {
			victim := objs[rng.Intn(len(objs))].ID
			switch rng.Intn(3) {
			case 0:
				_, err := m.AddObject(randomObject(rng, 0))
				require.NoError(t, err)
			case 1:
				_ = m.Remove(victim)
			default:
				_ = m.Move(victim, vec(rng.Float64()*6-3, rng.Float64()*6-3))
			}
		}

		st := e.ApplyChanges(m.DrainChanges())
		assert.Equal(t, "incremental", st.Mode)

		full, _ := RebuildConnectivity(m.Objects(), m.Layers(), 0.4)
		require.True(t, netlist.SameMembership(full, e.Nets()), "round %d diverged", round)
	}
}

func TestIncrementalKeepsUnrelatedNames(t *testing.T) {
	m := layout.NewModel(stack(2))
	a1, _ := m.AddWire(1, vec(0, 0), vec(10, 0), 1, "")
	a2, _ := m.AddWire(1, vec(10, 0), vec(10, 10), 1, "")
	b, _ := m.AddWire(1, vec(100, 100), vec(110, 100), 1, "")
	m.DrainChanges()

	e := newEngine(t, nil)
	e.Load(m)
	netA, _ := e.Nets().NetOf(a1)
	netB, _ := e.Nets().NetOf(b)
	require.NoError(t, e.Rename(netA.ID, "VDD"))

	// grow A, move B a little
	c, _ := m.AddWire(1, vec(10, 10), vec(20, 10), 1, "")
	require.NoError(t, m.Move(b, vec(1, 0)))
	st := e.ApplyChanges(m.DrainChanges())
	assert.Equal(t, 2, st.Retired)

	n, _ := e.Nets().NetOf(c)
	assert.Equal(t, netA.ID, n.ID)
	assert.Equal(t, "VDD", n.Name)
	assert.True(t, sameNet(t, e.Nets(), a2, c))
	n, _ = e.Nets().NetOf(b)
	assert.Equal(t, netB.ID, n.ID)

	// splitting A: the larger half keeps the name
	require.NoError(t, m.Remove(a2))
	e.ApplyChanges(m.DrainChanges())
	n, _ = e.Nets().NetOf(a1)
	nc, _ := e.Nets().NetOf(c)
	assert.NotEqual(t, n.ID, nc.ID)
	assert.True(t, n.ID == netA.ID || nc.ID == netA.ID)
}

func TestGatePortsJoinThroughNets(t *testing.T) {
	layers := layout.MustLayerStack(
		layout.Layer{Index: 0, Type: layout.LayerLogic},
		layout.Layer{Index: 1, Type: layout.LayerMetal},
	)
	m := layout.NewModel(layers)
	require.NoError(t, m.AddTemplate(layout.GateTemplate{Name: "inv", Width: 4, Height: 4, Ports: []layout.TemplatePort{
		{Name: "a", Offset: vec(0, 2), Direction: layout.DirIn, Diameter: 1, Layer: layout.GateLayer},
		{Name: "y", Offset: vec(4, 2), Direction: layout.DirOut, Diameter: 1, Layer: layout.GateLayer},
	}}))
	g1, _ := m.PlaceGate(layout.Gate{Name: "u1", Template: "inv"})
	g2, _ := m.PlaceGate(layout.Gate{Name: "u2", Template: "inv", Origin: vec(20, 0)})
	// u1.y at (4,2) up to M1, across to (20,2), down to u2.a
	_, _ = m.AddVia(0, vec(4, 2), 1, layout.ViaUp, "")
	_, _ = m.AddWire(1, vec(4, 2), vec(20, 2), 1, "")
	_, _ = m.AddVia(1, vec(20, 2), 1, layout.ViaDown, "")

	e := newEngine(t, nil)
	e.Load(m)

	gate1, _ := m.Gate(g1)
	gate2, _ := m.Gate(g2)
	y, _ := gate1.PortID("y")
	a, _ := gate2.PortID("a")
	assert.True(t, sameNet(t, e.Nets(), y, a))

	// moving u2 away breaks the link incrementally
	require.NoError(t, m.Move(g2, vec(0, 50)))
	e.ApplyChanges(m.DrainChanges())
	assert.False(t, sameNet(t, e.Nets(), y, a))
}

func TestLargeBatchFallsBackToFullRebuild(t *testing.T) {
	m := layout.NewModel(stack(1))
	e := newEngine(t, func(c *Config) { c.IncrementalLimit = 2 })
	e.Load(m)
	for i := 0; i < 3; i++ {
		_, _ = m.AddWire(0, vec(float64(i), 0), vec(float64(i)+1, 0), 1, "")
	}
	st := e.ApplyChanges(m.DrainChanges())
	assert.Equal(t, "full", st.Mode)
	assert.Equal(t, 1, e.Nets().Len())
}

func TestLoadIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := layout.NewModel(stack(4))
	for i := 0; i < 80; i++ {
		_, _ = m.AddObject(randomObject(rng, 0))
	}
	e := newEngine(t, nil)
	e.Load(m)
	first := e.Nets()
	e.Load(m)
	assert.True(t, netlist.SameMembership(first, e.Nets()))
	for _, n := range first.Nets() {
		again, ok := e.Nets().Net(n.ID)
		require.True(t, ok, "net %s renamed on identical reload", n.ID)
		assert.Equal(t, n.Members, again.Members)
	}
}

func TestWorkerResultApplies(t *testing.T) {
	m := layout.NewModel(stack(2))
	a, _ := m.AddWire(1, vec(0, 0), vec(10, 0), 1, "")
	b, _ := m.AddWire(1, vec(10, 0), vec(20, 0), 1, "")
	e := newEngine(t, nil)
	e.Load(m)

	progress := make(chan Progress, 16)
	w := NewWorker(nil, progress)
	res, err := w.Rebuild(context.Background(), e.Snapshot())
	require.NoError(t, err)
	assert.True(t, e.Apply(res))
	assert.True(t, sameNet(t, e.Nets(), a, b))

	close(progress)
	var phases []string
	for p := range progress {
		phases = append(phases, p.Phase)
	}
	assert.Equal(t, []string{"linking", "naming"}, phases)
}

func TestStaleSnapshotIsDropped(t *testing.T) {
	m := layout.NewModel(stack(2))
	_, _ = m.AddWire(1, vec(0, 0), vec(10, 0), 1, "")
	e := newEngine(t, nil)
	e.Load(m)

	snap := e.Snapshot()
	before := e.Nets()

	// an edit lands while the worker is busy
	_, _ = m.AddWire(1, vec(50, 50), vec(60, 50), 1, "")
	e.ApplyChanges(m.DrainChanges())
	assert.True(t, snap.Stale())
	current := e.Nets()

	_, err := NewWorker(nil, nil).Rebuild(context.Background(), snap)
	assert.True(t, errors.Is(err, ErrStale))

	// a result computed before the edit is refused too
	fresh := e.Snapshot()
	res, err := NewWorker(nil, nil).Rebuild(context.Background(), fresh)
	require.NoError(t, err)
	_, _ = m.AddWire(1, vec(80, 80), vec(90, 80), 1, "")
	e.ApplyChanges(m.DrainChanges())
	assert.False(t, e.Apply(res))
	assert.NotSame(t, before, e.Nets())
	assert.NotSame(t, current, e.Nets())
	assert.Equal(t, 3, e.Nets().Len())
}

func TestCancelledWorkerProducesNothing(t *testing.T) {
	m := layout.NewModel(stack(1))
	_, _ = m.AddWire(0, vec(0, 0), vec(10, 0), 1, "")
	e := newEngine(t, nil)
	e.Load(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewWorker(nil, nil).Rebuild(ctx, e.Snapshot())
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, e.Apply(nil))
}

func TestSnapshotIsIsolated(t *testing.T) {
	m := layout.NewModel(stack(1))
	a, _ := m.AddWire(0, vec(0, 0), vec(10, 0), 1, "")
	e := newEngine(t, nil)
	e.Load(m)
	snap := e.Snapshot()

	require.NoError(t, m.Remove(a))
	e.ApplyChanges(m.DrainChanges())

	_, ok := snap.Object(a)
	assert.True(t, ok)
	_, ok = snap.Nets.NetOf(a)
	assert.True(t, ok)
	_, ok = e.Nets().NetOf(a)
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Lambda: -1, GridCellSize: 0, IncrementalLimit: 0}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.0, cfg.Lambda)
	assert.Equal(t, 16.0, cfg.GridCellSize)
	assert.Equal(t, 1, cfg.IncrementalLimit)

	_, err := NewEngine(&Config{Lambda: math.Inf(1)}, nil)
	assert.Error(t, err)
}
