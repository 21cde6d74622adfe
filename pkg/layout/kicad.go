package layout

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/geometry"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout/sexp"
)

// ImportKiCadFile reads a KiCad board (.kicad_pcb) as a layout model.
func ImportKiCadFile(filename string) (*Model, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("layout: failed to open file: %w", err)
	}
	defer file.Close()

	m, err := ImportKiCad(file)
	if err != nil {
		return nil, fmt.Errorf("layout: %s: %w", filename, err)
	}
	return m, nil
}

// ImportKiCad converts a KiCad board into a layout model. Copper layers
// become metal layers in file order, segments and arcs become wires, vias
// become chains of upward vias, and footprint pads become module ports
// named "REF.PAD".
func ImportKiCad(r io.Reader) (*Model, error) {
	nodes, err := sexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s-expression: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("empty file or no valid s-expressions found")
	}
	root := nodes[0]
	if root.Head() != "kicad_pcb" {
		return nil, fmt.Errorf("not a KiCad PCB file: expected 'kicad_pcb', got '%s'", root.Head())
	}

	copper := make(map[string]int)
	var layers []Layer
	if ln, ok := root.Find("layers"); ok {
		for _, def := range ln.Args() {
			if !def.IsList || len(def.List) < 2 {
				continue
			}
			name, _ := def.String(1)
			if !strings.HasSuffix(name, ".Cu") {
				continue
			}
			copper[name] = len(layers)
			layers = append(layers, Layer{Index: len(layers), Type: LayerMetal, Name: name})
		}
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("board has no copper layers")
	}
	stack, err := NewLayerStack(layers...)
	if err != nil {
		return nil, err
	}
	m := NewModel(stack)

	for _, n := range root.Args() {
		var err error
		switch n.Head() {
		case "segment":
			err = importSegment(m, n, copper)
		case "arc":
			err = importArc(m, n, copper)
		case "via":
			err = importVia(m, n, copper, len(layers))
		case "footprint", "module":
			err = importFootprint(m, n, copper, len(layers))
		}
		if err != nil {
			return nil, err
		}
	}

	m.DrainChanges()
	return m, nil
}

func copperLayer(n *sexp.Node, copper map[string]int) (int, bool) {
	ln, ok := n.Find("layer")
	if !ok {
		return 0, false
	}
	name, err := ln.String(1)
	if err != nil {
		return 0, false
	}
	idx, ok := copper[name]
	return idx, ok
}

func importSegment(m *Model, n *sexp.Node, copper map[string]int) error {
	layer, ok := copperLayer(n, copper)
	if !ok {
		return nil
	}
	start, err := parsePoint(n, "start")
	if err != nil {
		return err
	}
	end, err := parsePoint(n, "end")
	if err != nil {
		return err
	}
	width, err := optionalFloat(n, "width", 0)
	if err != nil {
		return err
	}
	_, err = m.AddWire(layer, start, end, width, "")
	return err
}

// importArc approximates an arc track by the two chords through its midpoint.
func importArc(m *Model, n *sexp.Node, copper map[string]int) error {
	layer, ok := copperLayer(n, copper)
	if !ok {
		return nil
	}
	start, err := parsePoint(n, "start")
	if err != nil {
		return err
	}
	mid, err := parsePoint(n, "mid")
	if err != nil {
		return err
	}
	end, err := parsePoint(n, "end")
	if err != nil {
		return err
	}
	width, err := optionalFloat(n, "width", 0)
	if err != nil {
		return err
	}
	if _, err := m.AddWire(layer, start, mid, width, ""); err != nil {
		return err
	}
	_, err = m.AddWire(layer, mid, end, width, "")
	return err
}

// layerSpan resolves a (layers a b) list to an inclusive index range.
// "*.Cu" spans every copper layer.
func layerSpan(n *sexp.Node, copper map[string]int, count int) (int, int, bool) {
	ln, ok := n.Find("layers")
	if !ok {
		return 0, 0, false
	}
	lo, hi := math.MaxInt, -1
	for _, name := range ln.Atoms() {
		if name == "*.Cu" {
			return 0, count - 1, true
		}
		if idx, ok := copper[name]; ok {
			lo = min(lo, idx)
			hi = max(hi, idx)
		}
	}
	if hi < 0 {
		return 0, 0, false
	}
	return lo, hi, true
}

func importVia(m *Model, n *sexp.Node, copper map[string]int, count int) error {
	at, err := parsePoint(n, "at")
	if err != nil {
		return err
	}
	size, err := optionalFloat(n, "size", 0)
	if err != nil {
		return err
	}
	lo, hi, ok := layerSpan(n, copper, count)
	if !ok {
		return nil
	}
	return addViaChain(m, at, size, lo, hi, "")
}

func addViaChain(m *Model, at r2.Vec, size float64, lo, hi int, name string) error {
	for k := lo; k < hi; k++ {
		if _, err := m.AddVia(k, at, size, ViaUp, name); err != nil {
			return err
		}
	}
	return nil
}

func importFootprint(m *Model, n *sexp.Node, copper map[string]int, count int) error {
	origin, err := parsePoint(n, "at")
	if err != nil {
		return err
	}
	var angle float64
	if an, ok := n.Find("at"); ok {
		if a, err := an.Float(3); err == nil {
			angle = a
		}
	}

	ref := ""
	for _, p := range n.FindAll("property") {
		if k, _ := p.String(1); k == "Reference" {
			ref, _ = p.String(2)
		}
	}
	if ref == "" {
		for _, t := range n.FindAll("fp_text") {
			if k, _ := t.String(1); k == "reference" {
				ref, _ = t.String(2)
			}
		}
	}

	for _, pad := range n.FindAll("pad") {
		number, _ := pad.String(1)
		rel, err := parsePoint(pad, "at")
		if err != nil {
			return err
		}
		var diameter float64
		if sn, ok := pad.Find("size"); ok {
			w, _ := sn.Float(1)
			h, _ := sn.Float(2)
			diameter = math.Max(w, h)
		}
		lo, hi, ok := layerSpan(pad, copper, count)
		if !ok {
			continue
		}

		pos := r2.Add(origin, rotateDegrees(rel, -angle))
		name := ref + "." + number
		if _, err := m.AddObject(PlacedObject{
			Kind:  KindModulePort,
			Layer: lo,
			Name:  name,
			Shape: geometry.Point(pos, diameter),
		}); err != nil {
			return err
		}
		if err := addViaChain(m, pos, diameter, lo, hi, name); err != nil {
			return err
		}
	}
	return nil
}

func rotateDegrees(p r2.Vec, deg float64) r2.Vec {
	if deg == 0 {
		return p
	}
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return r2.Vec{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
}
