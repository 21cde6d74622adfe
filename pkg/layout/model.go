package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/geometry"
)

// ErrNotFound is returned when an object, gate or template does not exist.
var ErrNotFound = errors.New("layout: not found")

// Source enumerates the logic model for the connectivity engine.
type Source interface {
	Layers() LayerStack
	Objects() []PlacedObject
}

// Annotator is the narrow write-back interface the core uses to publish
// derived state into the logic model.
type Annotator interface {
	SetNetName(id ObjectID, net string)
	MarkViolation(id ObjectID, ruleKey string)
	ClearViolationMarks()
}

// ChangeOp is the kind of edit recorded in the change log.
type ChangeOp int

const (
	ChangeAdded ChangeOp = iota
	ChangeRemoved
	ChangeUpdated
)

func (op ChangeOp) String() string {
	switch op {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	default:
		return "updated"
	}
}

// Change records one object edit. Before is nil for additions, After is nil
// for removals.
type Change struct {
	Op     ChangeOp
	ID     ObjectID
	Before *PlacedObject
	After  *PlacedObject
}

// Model is an in-memory logic model. It is written by a single edit
// goroutine; the lock only protects concurrent readers.
type Model struct {
	mu sync.RWMutex

	layers    LayerStack
	objects   map[ObjectID]PlacedObject // free-standing objects
	gates     map[ObjectID]Gate
	templates map[string]*GateTemplate
	nextID    ObjectID
	revision  uint64
	changes   []Change

	netNames   map[ObjectID]string
	violations map[ObjectID][]string
}

// NewModel creates an empty model over the given layer stack.
func NewModel(layers LayerStack) *Model {
	return &Model{
		layers:     layers,
		objects:    make(map[ObjectID]PlacedObject),
		gates:      make(map[ObjectID]Gate),
		templates:  make(map[string]*GateTemplate),
		nextID:     1,
		netNames:   make(map[ObjectID]string),
		violations: make(map[ObjectID][]string),
	}
}

// Layers implements Source.
func (m *Model) Layers() LayerStack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.layers
}

// Revision increases on every edit.
func (m *Model) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}

// Objects implements Source. Gate ports are derived from their gate's
// placement, so the result is sorted by id and freshly computed.
func (m *Model) Objects() []PlacedObject {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PlacedObject, 0, len(m.objects)+4*len(m.gates))
	for _, o := range m.objects {
		out = append(out, o)
	}
	for _, g := range m.gates {
		out = append(out, m.gatePorts(&g)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Object returns a single object, including derived gate ports.
func (m *Model) Object(id ObjectID) (PlacedObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(id)
}

func (m *Model) lookup(id ObjectID) (PlacedObject, bool) {
	if o, ok := m.objects[id]; ok {
		return o, true
	}
	for _, g := range m.gates {
		for name, pid := range g.ports {
			if pid != id {
				continue
			}
			t := m.templates[g.Template]
			tp, _ := t.Port(name)
			return g.portObject(t, tp), true
		}
	}
	return PlacedObject{}, false
}

func (m *Model) gatePorts(g *Gate) []PlacedObject {
	t := m.templates[g.Template]
	out := make([]PlacedObject, 0, len(t.Ports))
	for _, tp := range t.Ports {
		out = append(out, g.portObject(t, tp))
	}
	return out
}

// AddObject inserts a free-standing object and assigns its id.
// Gate ports cannot be added directly; place a gate instead.
func (m *Model) AddObject(obj PlacedObject) (ObjectID, error) {
	if obj.Kind == KindGatePort {
		return 0, fmt.Errorf("layout: gate ports are derived from gates")
	}
	if err := obj.Shape.Validate(); err != nil {
		return 0, fmt.Errorf("layout: add %s: %w", obj.Kind, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	obj.ID = m.allocID()
	obj.Port = nil
	m.objects[obj.ID] = obj
	m.record(Change{Op: ChangeAdded, ID: obj.ID, After: ptr(obj)})
	return obj.ID, nil
}

// AddWire places a wire segment.
func (m *Model) AddWire(layer int, from, to r2.Vec, diameter float64, name string) (ObjectID, error) {
	return m.AddObject(PlacedObject{
		Kind:  KindWire,
		Layer: layer,
		Name:  name,
		Shape: geometry.Segment(from, to, diameter),
	})
}

// AddVia places a via.
func (m *Model) AddVia(layer int, at r2.Vec, diameter float64, dir ViaDirection, name string) (ObjectID, error) {
	return m.AddObject(PlacedObject{
		Kind:         KindVia,
		Layer:        layer,
		Name:         name,
		Shape:        geometry.Point(at, diameter),
		ViaDirection: dir,
	})
}

// AddEMarker places an electrical marker.
func (m *Model) AddEMarker(layer int, at r2.Vec, diameter float64, name string) (ObjectID, error) {
	return m.AddObject(PlacedObject{
		Kind:  KindEMarker,
		Layer: layer,
		Name:  name,
		Shape: geometry.Point(at, diameter),
	})
}

// AddModulePort places a module boundary port.
func (m *Model) AddModulePort(layer int, at r2.Vec, diameter float64, dir PortDirection, name string) (ObjectID, error) {
	return m.AddObject(PlacedObject{
		Kind:      KindModulePort,
		Layer:     layer,
		Name:      name,
		Shape:     geometry.Point(at, diameter),
		Direction: dir,
	})
}

// AddAnnotation places a non-electrical annotation.
func (m *Model) AddAnnotation(layer int, shape geometry.Shape, name string) (ObjectID, error) {
	return m.AddObject(PlacedObject{
		Kind:  KindAnnotation,
		Layer: layer,
		Name:  name,
		Shape: shape,
	})
}

// AddTemplate registers a gate template. Names must be unique.
func (m *Model) AddTemplate(t GateTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Name == "" {
		return fmt.Errorf("layout: template name is required")
	}
	if _, dup := m.templates[t.Name]; dup {
		return fmt.Errorf("layout: duplicate template %q", t.Name)
	}
	seen := make(map[string]bool, len(t.Ports))
	for _, p := range t.Ports {
		if seen[p.Name] {
			return fmt.Errorf("layout: template %q has duplicate port %q", t.Name, p.Name)
		}
		seen[p.Name] = true
	}
	tc := t
	tc.Ports = append([]TemplatePort(nil), t.Ports...)
	m.templates[t.Name] = &tc
	return nil
}

// Template returns a registered template.
func (m *Model) Template(name string) (GateTemplate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[name]
	if !ok {
		return GateTemplate{}, false
	}
	return *t, true
}

// PlaceGate instantiates a template and allocates ids for its ports.
func (m *Model) PlaceGate(g Gate) (ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[g.Template]
	if !ok {
		return 0, fmt.Errorf("layout: place gate %q: template %q: %w", g.Name, g.Template, ErrNotFound)
	}
	for name := range g.Overrides {
		if _, ok := t.Port(name); !ok {
			return 0, fmt.Errorf("layout: place gate %q: override for unknown port %q", g.Name, name)
		}
	}

	g = g.clone()
	g.ID = m.allocID()
	if g.Name == "" {
		g.Name = fmt.Sprintf("gate%d", g.ID)
	}
	for _, tp := range t.Ports {
		g.ports[tp.Name] = m.allocID()
	}
	m.gates[g.ID] = g
	for _, p := range m.gatePorts(&g) {
		m.record(Change{Op: ChangeAdded, ID: p.ID, After: ptr(p)})
	}
	return g.ID, nil
}

// Gate returns a placed gate.
func (m *Model) Gate(id ObjectID) (Gate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gates[id]
	if !ok {
		return Gate{}, false
	}
	return g.clone(), true
}

// Gates returns all placed gates sorted by id.
func (m *Model) Gates() []Gate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Gate, 0, len(m.gates))
	for _, g := range m.gates {
		out = append(out, g.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OverridePortDirection sets or clears (DirUndefined with clear=true) the
// direction of one gate port.
func (m *Model) OverridePortDirection(gateID ObjectID, port string, dir PortDirection, clear bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.gates[gateID]
	if !ok {
		return fmt.Errorf("layout: gate %s: %w", gateID, ErrNotFound)
	}
	t := m.templates[g.Template]
	tp, ok := t.Port(port)
	if !ok {
		return fmt.Errorf("layout: gate %q port %q: %w", g.Name, port, ErrNotFound)
	}

	before := g.portObject(t, tp)
	g = g.clone()
	if clear {
		delete(g.Overrides, port)
	} else {
		if g.Overrides == nil {
			g.Overrides = make(map[string]PortDirection)
		}
		g.Overrides[port] = dir
	}
	m.gates[gateID] = g
	after := g.portObject(t, tp)
	m.record(Change{Op: ChangeUpdated, ID: after.ID, Before: &before, After: &after})
	return nil
}

// Move translates an object or a whole gate by d.
func (m *Model) Move(id ObjectID, d r2.Vec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.objects[id]; ok {
		before := o
		o.Shape = o.Shape.Translate(d)
		m.objects[id] = o
		m.record(Change{Op: ChangeUpdated, ID: id, Before: &before, After: ptr(o)})
		return nil
	}
	if g, ok := m.gates[id]; ok {
		before := m.gatePorts(&g)
		g.Origin = r2.Add(g.Origin, d)
		m.gates[id] = g
		after := m.gatePorts(&g)
		for i := range after {
			m.record(Change{Op: ChangeUpdated, ID: after[i].ID, Before: &before[i], After: &after[i]})
		}
		return nil
	}
	return fmt.Errorf("layout: move %s: %w", id, ErrNotFound)
}

// Remove deletes an object or a gate with all of its ports.
func (m *Model) Remove(id ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.objects[id]; ok {
		delete(m.objects, id)
		delete(m.netNames, id)
		delete(m.violations, id)
		m.record(Change{Op: ChangeRemoved, ID: id, Before: ptr(o)})
		return nil
	}
	if g, ok := m.gates[id]; ok {
		for _, p := range m.gatePorts(&g) {
			delete(m.netNames, p.ID)
			delete(m.violations, p.ID)
			m.record(Change{Op: ChangeRemoved, ID: p.ID, Before: ptr(p)})
		}
		delete(m.gates, id)
		return nil
	}
	return fmt.Errorf("layout: remove %s: %w", id, ErrNotFound)
}

// DrainChanges returns and clears the change log.
func (m *Model) DrainChanges() []Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.changes
	m.changes = nil
	return out
}

// SetNetName implements Annotator.
func (m *Model) SetNetName(id ObjectID, net string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.netNames[id] = net
}

// NetName returns the net name last annotated on an object.
func (m *Model) NetName(id ObjectID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.netNames[id]
}

// MarkViolation implements Annotator.
func (m *Model) MarkViolation(id ObjectID, ruleKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.violations[id] {
		if k == ruleKey {
			return
		}
	}
	m.violations[id] = append(m.violations[id], ruleKey)
}

// ClearViolationMarks implements Annotator.
func (m *Model) ClearViolationMarks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = make(map[ObjectID][]string)
}

// ViolationMarks returns the rule keys marked on an object.
func (m *Model) ViolationMarks(id ObjectID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.violations[id]...)
}

func (m *Model) allocID() ObjectID {
	id := m.nextID
	m.nextID++
	return id
}

func (m *Model) record(c Change) {
	m.revision++
	m.changes = append(m.changes, c)
}

func ptr(o PlacedObject) *PlacedObject {
	return &o
}

// FindByName returns the id of the object or gate with the given name.
// Gate ports are named "gate.port".
func (m *Model) FindByName(name string) (ObjectID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, o := range m.objects {
		if o.Name == name {
			return id, true
		}
	}
	for id, g := range m.gates {
		if g.Name == name {
			return id, true
		}
		if gate, port, ok := strings.Cut(name, "."); ok && gate == g.Name {
			if pid, ok := g.ports[port]; ok {
				return pid, true
			}
		}
	}
	return 0, false
}
