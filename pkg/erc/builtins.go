package erc

import (
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

// Built-in check keys.
const (
	KeyOpenPort               = "open_port"
	KeyUndefinedPortDirection = "net.undefined_port_direction"
	KeyNotFeeded              = "net.not_feeded"
	KeyOutputsConnected       = "net.outputs_connected"
	KeyViaUndefinedDirection  = "via.undefined_direction"
)

// Diagnostic keys. They are not registry entries: the runner emits them
// with undefined severity whatever the registry says.
const (
	KeyInputInconsistent = "input.inconsistent"
	KeyCheckFailed       = "erc.check_failed"
)

// Builtins returns a fresh registry holding the built-in checks.
func Builtins() *Registry {
	r := NewRegistry()
	r.MustRegister(Check{
		Descriptor: Descriptor{
			Key:         KeyOpenPort,
			Severity:    SeverityError,
			Description: "port {subject} is not connected",
		},
		Scope:  ScopeObject,
		Object: checkOpenPort,
	})
	r.MustRegister(Check{
		Descriptor: Descriptor{
			Key:         KeyUndefinedPortDirection,
			Severity:    SeverityWarning,
			Description: "port {subject} in net {net} has an undefined direction",
		},
		Scope:     ScopeNet,
		Net:       checkUndefinedPortDirection,
		Cacheable: true,
	})
	r.MustRegister(Check{
		Descriptor: Descriptor{
			Key:         KeyNotFeeded,
			Severity:    SeverityError,
			Description: "net {net} has inputs {subjects} but no driver",
		},
		Scope:     ScopeNet,
		Net:       checkNotFeeded,
		Cacheable: true,
	})
	r.MustRegister(Check{
		Descriptor: Descriptor{
			Key:         KeyOutputsConnected,
			Severity:    SeverityError,
			Description: "net {net} connects outputs {subjects}",
		},
		Scope:     ScopeNet,
		Net:       checkOutputsConnected,
		Cacheable: true,
	})
	r.MustRegister(Check{
		Descriptor: Descriptor{
			Key:         KeyViaUndefinedDirection,
			Severity:    SeverityWarning,
			Description: "via {subject} has an undefined direction and {detail}",
		},
		Scope:  ScopeObject,
		Object: checkViaUndefinedDirection,
	})
	return r
}

func checkOpenPort(s *ObjectSubject) []Finding {
	if !s.Object.Kind.IsPort() || s.Net == nil || s.Net.Size() != 1 {
		return nil
	}
	return []Finding{{Subjects: []layout.ObjectID{s.Object.ID}}}
}

func checkViaUndefinedDirection(s *ObjectSubject) []Finding {
	if s.Object.Kind != layout.KindVia || s.Object.ViaDirection != layout.ViaUndefined {
		return nil
	}
	var reached []string
	for _, l := range s.Object.ViaDirection.Reach(s.Object.Layer) {
		if s.Layers.Has(l) {
			reached = append(reached, strconv.Itoa(l))
		}
	}
	detail := "links layers " + strings.Join(reached, " and ")
	if len(reached) == 1 {
		detail = "links only layer " + reached[0]
	}
	return []Finding{{Subjects: []layout.ObjectID{s.Object.ID}, Detail: detail}}
}

func checkUndefinedPortDirection(s *NetSubject) []Finding {
	var out []Finding
	for _, p := range s.Ports() {
		if p.Direction == layout.DirUndefined {
			out = append(out, Finding{Subjects: []layout.ObjectID{p.ID}})
		}
	}
	return out
}

// checkNotFeeded reports nets whose gate inputs have nothing that could
// drive them. Undefined gate ports and module ports might drive the net,
// so they silence the check; singletons are left to open_port.
func checkNotFeeded(s *NetSubject) []Finding {
	if len(s.Members) < 2 {
		return nil
	}
	var inputs []layout.ObjectID
	for _, o := range s.Members {
		switch {
		case o.Kind == layout.KindModulePort:
			return nil
		case o.Kind != layout.KindGatePort:
			continue
		case o.Direction == layout.DirIn:
			inputs = append(inputs, o.ID)
		default:
			return nil
		}
	}
	if len(inputs) == 0 {
		return nil
	}
	return []Finding{{Subjects: inputs}}
}

func checkOutputsConnected(s *NetSubject) []Finding {
	var outputs []layout.ObjectID
	for _, p := range s.Ports() {
		if p.Direction == layout.DirOut {
			outputs = append(outputs, p.ID)
		}
	}
	if len(outputs) < 2 {
		return nil
	}
	return []Finding{{Subjects: outputs}}
}
