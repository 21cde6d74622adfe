package layout

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/geometry"
)

// GateLayer marks a template port that sits on the gate's own layer.
const GateLayer = -1

// Orientation is how a gate instance is mirrored relative to its template.
type Orientation int

const (
	OrientNormal Orientation = iota
	OrientFlippedVertical
	OrientFlippedHorizontal
	OrientFlippedBoth
)

func (o Orientation) String() string {
	switch o {
	case OrientFlippedVertical:
		return "flipped-vertical"
	case OrientFlippedHorizontal:
		return "flipped-horizontal"
	case OrientFlippedBoth:
		return "flipped-both"
	default:
		return "normal"
	}
}

// ParseOrientation converts an orientation name.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return OrientNormal, nil
	case "flipped-vertical", "flipped-up-down":
		return OrientFlippedVertical, nil
	case "flipped-horizontal", "flipped-left-right":
		return OrientFlippedHorizontal, nil
	case "flipped-both":
		return OrientFlippedBoth, nil
	default:
		return OrientNormal, fmt.Errorf("layout: unknown orientation %q", s)
	}
}

// TemplatePort is a port definition relative to the template's origin.
type TemplatePort struct {
	Name      string
	Offset    r2.Vec
	Direction PortDirection
	Diameter  float64
	Layer     int // GateLayer or an absolute layer index
}

// GateTemplate is a reusable cell definition.
type GateTemplate struct {
	Name   string
	Width  float64
	Height float64
	Ports  []TemplatePort
}

// Port returns the template port with the given name.
func (t *GateTemplate) Port(name string) (TemplatePort, bool) {
	for _, p := range t.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return TemplatePort{}, false
}

// Gate is a placed instance of a template.
type Gate struct {
	ID          ObjectID
	Name        string
	Template    string
	Origin      r2.Vec // Top-left corner of the placement
	Orientation Orientation
	Layer       int

	// Overrides replaces template port directions by port name.
	Overrides map[string]PortDirection

	ports map[string]ObjectID // template port name -> port object id
}

// PortID returns the object id assigned to a template port of this gate.
func (g *Gate) PortID(port string) (ObjectID, bool) {
	id, ok := g.ports[port]
	return id, ok
}

// EffectiveDirection returns the override for a port if set, otherwise the
// template's direction.
func (g *Gate) EffectiveDirection(tp TemplatePort) PortDirection {
	if d, ok := g.Overrides[tp.Name]; ok {
		return d
	}
	return tp.Direction
}

// Transform maps a template offset to an absolute position.
func (g *Gate) Transform(t *GateTemplate, offset r2.Vec) r2.Vec {
	p := offset
	switch g.Orientation {
	case OrientFlippedVertical:
		p.Y = t.Height - p.Y
	case OrientFlippedHorizontal:
		p.X = t.Width - p.X
	case OrientFlippedBoth:
		p.X = t.Width - p.X
		p.Y = t.Height - p.Y
	}
	return r2.Add(g.Origin, p)
}

// Bounds returns the placed area of the gate.
func (g *Gate) Bounds(t *GateTemplate) geometry.Box {
	return geometry.BoxOf(g.Origin, r2.Add(g.Origin, r2.Vec{X: t.Width, Y: t.Height}))
}

// portObject derives the placed object for one template port.
func (g *Gate) portObject(t *GateTemplate, tp TemplatePort) PlacedObject {
	layer := tp.Layer
	if layer == GateLayer {
		layer = g.Layer
	}
	return PlacedObject{
		ID:        g.ports[tp.Name],
		Kind:      KindGatePort,
		Layer:     layer,
		Name:      g.Name + "." + tp.Name,
		Shape:     geometry.Point(g.Transform(t, tp.Offset), tp.Diameter),
		Direction: g.EffectiveDirection(tp),
		Port:      &PortRef{Gate: g.ID, GateName: g.Name, Port: tp.Name},
	}
}

func (g Gate) clone() Gate {
	out := g
	if g.Overrides != nil {
		out.Overrides = make(map[string]PortDirection, len(g.Overrides))
		for k, v := range g.Overrides {
			out.Overrides[k] = v
		}
	}
	out.ports = make(map[string]ObjectID, len(g.ports))
	for k, v := range g.ports {
		out.ports[k] = v
	}
	return out
}
