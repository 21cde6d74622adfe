package erc

import (
	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
)

// Descriptor is the immutable catalog entry of a check.
type Descriptor struct {
	Key         string   // Dotted identifier, e.g. "net.not_feeded"
	Severity    Severity // Default severity
	Description string   // Template, see Render
}

// Scope selects what a check is evaluated against.
type Scope int

const (
	ScopeNet    Scope = iota // once per net
	ScopeObject              // once per connectable object
)

func (s Scope) String() string {
	if s == ScopeObject {
		return "object"
	}
	return "net"
}

// Finding is one raw result of a check. The runner turns findings into
// violations.
type Finding struct {
	Subjects []layout.ObjectID // Objects the finding is about; empty means the whole subject
	Detail   string            // Free text for the {detail} placeholder
}

// NetSubject is what a net-scoped check sees.
type NetSubject struct {
	Net     *netlist.Net
	Members []layout.PlacedObject // sorted by id
}

// Ports returns the gate ports of the net.
func (s *NetSubject) Ports() []layout.PlacedObject {
	var out []layout.PlacedObject
	for _, o := range s.Members {
		if o.Kind == layout.KindGatePort {
			out = append(out, o)
		}
	}
	return out
}

// ObjectSubject is what an object-scoped check sees.
type ObjectSubject struct {
	Object layout.PlacedObject
	Net    *netlist.Net
	Layers layout.LayerStack
}

// NetFunc evaluates a net-scoped check.
type NetFunc func(s *NetSubject) []Finding

// ObjectFunc evaluates an object-scoped check.
type ObjectFunc func(s *ObjectSubject) []Finding

// Check is a registry entry. Exactly one of Net and Object is set, matching
// Scope. Checks must not modify what they are given.
type Check struct {
	Descriptor
	Scope  Scope
	Net    NetFunc
	Object ObjectFunc

	// Cacheable marks net checks whose findings depend only on the member
	// ids, kinds and port directions.
	Cacheable bool
}
