package layout

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout/sexp"
)

// LoadFile reads a layout (.otl) file.
func LoadFile(filename string) (*Model, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("layout: failed to open file: %w", err)
	}
	defer file.Close()

	m, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("layout: %s: %w", filename, err)
	}
	return m, nil
}

// Load reads a layout from an s-expression stream. The root must be a
// (layout ...) expression.
func Load(r io.Reader) (*Model, error) {
	nodes, err := sexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s-expression: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("empty file or no valid s-expressions found")
	}
	root := nodes[0]
	if root.Head() != "layout" {
		return nil, fmt.Errorf("not a layout file: expected 'layout', got '%s'", root.Head())
	}

	var layers []Layer
	for _, n := range root.FindAll("layer") {
		l, err := parseLayer(n)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	stack, err := NewLayerStack(layers...)
	if err != nil {
		return nil, err
	}

	m := NewModel(stack)
	defaultGateLayer := 0
	if l, ok := stack.FirstOfType(LayerLogic); ok {
		defaultGateLayer = l.Index
	}

	// Templates first so gates may appear anywhere in the file.
	for _, n := range root.FindAll("template") {
		t, err := parseTemplate(n)
		if err != nil {
			return nil, err
		}
		if err := m.AddTemplate(t); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
	}

	for _, n := range root.Args() {
		var err error
		switch n.Head() {
		case "layer", "template":
			continue
		case "gate":
			err = loadGate(m, n, defaultGateLayer)
		case "wire", "via", "emarker", "module-port", "annotation":
			err = loadObject(m, n)
		default:
			err = fmt.Errorf("line %d: unknown element (%s)", n.Line, n.Head())
		}
		if err != nil {
			return nil, err
		}
	}

	// A freshly loaded model has no pending edits.
	m.DrainChanges()
	return m, nil
}

func parseLayer(n *sexp.Node) (Layer, error) {
	idx, err := n.Int(1)
	if err != nil {
		return Layer{}, err
	}
	l := Layer{Index: idx}
	if s, err := n.String(2); err == nil {
		if l.Type, err = ParseLayerType(s); err != nil {
			return Layer{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
	}
	if s, err := n.String(3); err == nil {
		l.Name = s
	}
	return l, nil
}

func parseTemplate(n *sexp.Node) (GateTemplate, error) {
	name, err := n.String(1)
	if err != nil {
		return GateTemplate{}, err
	}
	t := GateTemplate{Name: name}
	if size, ok := n.Find("size"); ok {
		if t.Width, err = size.Float(1); err != nil {
			return t, err
		}
		if t.Height, err = size.Float(2); err != nil {
			return t, err
		}
	}
	for _, pn := range n.FindAll("port") {
		p := TemplatePort{Layer: GateLayer}
		if p.Name, err = pn.String(1); err != nil {
			return t, err
		}
		if p.Offset, err = parsePoint(pn, "at"); err != nil {
			return t, err
		}
		if p.Direction, err = parsePortDir(pn); err != nil {
			return t, err
		}
		if p.Diameter, err = optionalFloat(pn, "diameter", 0); err != nil {
			return t, err
		}
		if ln, ok := pn.Find("layer"); ok {
			if p.Layer, err = ln.Int(1); err != nil {
				return t, err
			}
		}
		t.Ports = append(t.Ports, p)
	}
	return t, nil
}

func loadGate(m *Model, n *sexp.Node, defaultLayer int) error {
	name, err := n.String(1)
	if err != nil {
		return err
	}
	g := Gate{Name: name, Layer: defaultLayer}

	tn, ok := n.Find("template")
	if !ok {
		return fmt.Errorf("line %d: gate %q has no (template ...)", n.Line, name)
	}
	if g.Template, err = tn.String(1); err != nil {
		return err
	}
	if g.Origin, err = parsePoint(n, "at"); err != nil {
		return err
	}
	if on, ok := n.Find("orientation"); ok {
		s, err := on.String(1)
		if err != nil {
			return err
		}
		if g.Orientation, err = ParseOrientation(s); err != nil {
			return fmt.Errorf("line %d: %w", on.Line, err)
		}
	}
	if ln, ok := n.Find("layer"); ok {
		if g.Layer, err = ln.Int(1); err != nil {
			return err
		}
	}
	for _, ov := range n.FindAll("override") {
		port, err := ov.String(1)
		if err != nil {
			return err
		}
		ds, err := ov.String(2)
		if err != nil {
			return err
		}
		dir, err := ParsePortDirection(ds)
		if err != nil {
			return fmt.Errorf("line %d: %w", ov.Line, err)
		}
		if g.Overrides == nil {
			g.Overrides = make(map[string]PortDirection)
		}
		g.Overrides[port] = dir
	}

	if _, err := m.PlaceGate(g); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	return nil
}

func loadObject(m *Model, n *sexp.Node) error {
	name, err := n.String(1)
	if err != nil {
		return err
	}
	ln, ok := n.Find("layer")
	if !ok {
		return fmt.Errorf("line %d: (%s %s) has no (layer ...)", n.Line, n.Head(), name)
	}
	layer, err := ln.Int(1)
	if err != nil {
		return err
	}
	diameter, err := optionalFloat(n, "diameter", 0)
	if err != nil {
		return err
	}

	obj := PlacedObject{Layer: layer, Name: name}
	switch n.Head() {
	case "wire":
		from, err := parsePoint(n, "from")
		if err != nil {
			return err
		}
		to, err := parsePoint(n, "to")
		if err != nil {
			return err
		}
		obj.Kind = KindWire
		obj.Shape = geometry.Segment(from, to, diameter)

	case "via":
		at, err := parsePoint(n, "at")
		if err != nil {
			return err
		}
		obj.Kind = KindVia
		obj.Shape = geometry.Point(at, diameter)
		if dn, ok := n.Find("direction"); ok {
			s, err := dn.String(1)
			if err != nil {
				return err
			}
			if obj.ViaDirection, err = ParseViaDirection(s); err != nil {
				return fmt.Errorf("line %d: %w", dn.Line, err)
			}
		}

	case "emarker", "module-port":
		at, err := parsePoint(n, "at")
		if err != nil {
			return err
		}
		obj.Kind = KindEMarker
		obj.Shape = geometry.Point(at, diameter)
		if n.Head() == "module-port" {
			obj.Kind = KindModulePort
			if obj.Direction, err = parsePortDir(n); err != nil {
				return err
			}
		}

	case "annotation":
		obj.Kind = KindAnnotation
		if obj.Shape, err = parseArea(n); err != nil {
			return err
		}
	}

	if _, err := m.AddObject(obj); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	return nil
}

func parseArea(n *sexp.Node) (geometry.Shape, error) {
	if rn, ok := n.Find("rect"); ok {
		var c [4]float64
		for i := range c {
			v, err := rn.Float(i + 1)
			if err != nil {
				return geometry.Shape{}, err
			}
			c[i] = v
		}
		return geometry.Rect(c[0], c[1], c[2], c[3]), nil
	}
	if pn, ok := n.Find("polygon"); ok {
		var pts []r2.Vec
		for _, p := range pn.FindAll("pt") {
			x, err := p.Float(1)
			if err != nil {
				return geometry.Shape{}, err
			}
			y, err := p.Float(2)
			if err != nil {
				return geometry.Shape{}, err
			}
			pts = append(pts, r2.Vec{X: x, Y: y})
		}
		return geometry.Polygon(pts), nil
	}
	return geometry.Shape{}, fmt.Errorf("line %d: (%s) needs (rect ...) or (polygon ...)", n.Line, n.Head())
}

func parsePoint(n *sexp.Node, key string) (r2.Vec, error) {
	pn, ok := n.Find(key)
	if !ok {
		return r2.Vec{}, fmt.Errorf("line %d: (%s) has no (%s x y)", n.Line, n.Head(), key)
	}
	x, err := pn.Float(1)
	if err != nil {
		return r2.Vec{}, err
	}
	y, err := pn.Float(2)
	if err != nil {
		return r2.Vec{}, err
	}
	return r2.Vec{X: x, Y: y}, nil
}

func parsePortDir(n *sexp.Node) (PortDirection, error) {
	dn, ok := n.Find("dir")
	if !ok {
		return DirUndefined, nil
	}
	s, err := dn.String(1)
	if err != nil {
		return DirUndefined, err
	}
	d, err := ParsePortDirection(s)
	if err != nil {
		return DirUndefined, fmt.Errorf("line %d: %w", dn.Line, err)
	}
	return d, nil
}

func optionalFloat(n *sexp.Node, key string, def float64) (float64, error) {
	vn, ok := n.Find(key)
	if !ok {
		return def, nil
	}
	return vn.Float(1)
}
