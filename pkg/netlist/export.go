package netlist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

// Resolver looks up the placed object behind a member id.
type Resolver func(id layout.ObjectID) (layout.PlacedObject, bool)

// ExportJSON exports the net model to JSON format.
func (m *Model) ExportJSON() ([]byte, error) {
	output := struct {
		Version     string `json:"version"`
		NetCount    int    `json:"net_count"`
		MultiNets   int    `json:"multi_member_nets"`
		ObjectCount int    `json:"object_count"`
		Nets        []*Net `json:"nets"`
		GeneratedBy string `json:"generated_by"`
	}{
		Version:     "1.0",
		NetCount:    m.Len(),
		MultiNets:   m.MultiMemberCount(),
		ObjectCount: m.ObjectCount(),
		Nets:        m.Nets(),
		GeneratedBy: "otn connectivity inference",
	}
	return json.MarshalIndent(output, "", "  ")
}

type node struct {
	ref, pin string
}

// portNode maps a port object to a KiCad (ref, pin) pair. Gate ports use
// the gate and port names; module ports named "REF.PIN" are split, other
// module ports become single-pin components.
func portNode(o layout.PlacedObject) (node, bool) {
	switch o.Kind {
	case layout.KindGatePort:
		if o.Port == nil {
			return node{}, false
		}
		return node{ref: o.Port.GateName, pin: o.Port.Port}, true
	case layout.KindModulePort:
		if ref, pin, ok := strings.Cut(o.Name, "."); ok && ref != "" && pin != "" {
			return node{ref: ref, pin: pin}, true
		}
		return node{ref: o.Label(), pin: "1"}, true
	default:
		return node{}, false
	}
}

// ExportKiCad exports the net model to KiCad netlist format. Only ports
// become nodes, and nets with fewer than two port nodes are skipped.
func (m *Model) ExportKiCad(resolve Resolver) (string, error) {
	if resolve == nil {
		return "", fmt.Errorf("netlist: export kicad: nil resolver")
	}

	type kicadNet struct {
		name  string
		nodes []node
	}
	var nets []kicadNet
	comps := make(map[string]bool)
	for _, n := range m.Nets() {
		var nodes []node
		for _, id := range n.Members {
			o, ok := resolve(id)
			if !ok {
				continue
			}
			if nd, ok := portNode(o); ok {
				nodes = append(nodes, nd)
			}
		}
		if len(nodes) < 2 {
			continue
		}
		for _, nd := range nodes {
			comps[nd.ref] = true
		}
		nets = append(nets, kicadNet{name: n.Name, nodes: nodes})
	}

	refs := make([]string, 0, len(comps))
	for ref := range comps {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	var b strings.Builder
	b.WriteString("(export (version D)\n")
	b.WriteString("  (design\n")
	b.WriteString("    (source \"otn connectivity inference\")\n")
	b.WriteString("  )\n")
	b.WriteString("  (components\n")
	for _, ref := range refs {
		fmt.Fprintf(&b, "    (comp (ref %s))\n", strconv.Quote(ref))
	}
	b.WriteString("  )\n")
	b.WriteString("  (nets\n")
	for code, n := range nets {
		fmt.Fprintf(&b, "    (net (code %d) (name %s)\n", code+1, strconv.Quote(n.name))
		for _, nd := range n.nodes {
			fmt.Fprintf(&b, "      (node (ref %s) (pin %s))\n", strconv.Quote(nd.ref), strconv.Quote(nd.pin))
		}
		b.WriteString("    )\n")
	}
	b.WriteString("  )\n")
	b.WriteString(")\n")
	return b.String(), nil
}
