// Package netlist holds the partition of connectable objects into nets. A
// Model is immutable once built; every recompute produces a new Model that
// the caller swaps in as a whole.
package netlist

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

// Net is a maximal set of electrically joined objects.
type Net struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Manual  bool              `json:"manual,omitempty"` // Name was assigned by the user
	Members []layout.ObjectID `json:"members"`
}

// Size returns the number of members.
func (n *Net) Size() int {
	return len(n.Members)
}

// Contains reports whether id is a member.
func (n *Net) Contains(id layout.ObjectID) bool {
	i := sort.Search(len(n.Members), func(i int) bool { return n.Members[i] >= id })
	return i < len(n.Members) && n.Members[i] == id
}

// Model maps nets to members and members back to nets.
type Model struct {
	nets     map[string]*Net
	byObject map[layout.ObjectID]string
	order    []string
	counter  uint64 // last fresh net number handed out
}

// Empty returns a model with no nets.
func Empty() *Model {
	return &Model{
		nets:     make(map[string]*Net),
		byObject: make(map[layout.ObjectID]string),
	}
}

// Build materialises one net per group. Names are inherited from prev by
// majority overlap; prev may be nil.
func Build(groups [][]layout.ObjectID, prev *Model) *Model {
	if prev == nil {
		prev = Empty()
	}
	return prev.Replace(prev.order, groups)
}

// Replace returns a new model in which the nets named by retired are
// replaced by one net per group. Groups inherit names from the retired nets
// only; nets not retired carry over unchanged.
func (m *Model) Replace(retired []string, groups [][]layout.ObjectID) *Model {
	out := &Model{
		nets:     make(map[string]*Net, len(m.nets)+len(groups)),
		byObject: make(map[layout.ObjectID]string, len(m.byObject)),
		counter:  m.counter,
	}

	gone := make(map[string]bool, len(retired))
	prior := make([]*Net, 0, len(retired))
	for _, id := range retired {
		if n, ok := m.nets[id]; ok && !gone[id] {
			gone[id] = true
			prior = append(prior, n)
		}
	}
	for id, n := range m.nets {
		if gone[id] {
			continue
		}
		out.nets[id] = n
		for _, obj := range n.Members {
			out.byObject[obj] = id
		}
	}

	for _, n := range assignNames(groups, prior, m.byObject, &out.counter) {
		out.nets[n.ID] = n
		for _, obj := range n.Members {
			out.byObject[obj] = n.ID
		}
	}

	out.order = make([]string, 0, len(out.nets))
	for id := range out.nets {
		out.order = append(out.order, id)
	}
	sort.Strings(out.order)
	return out
}

// NetOf returns the net an object belongs to.
func (m *Model) NetOf(id layout.ObjectID) (*Net, bool) {
	netID, ok := m.byObject[id]
	if !ok {
		return nil, false
	}
	return m.nets[netID], true
}

// Net returns a net by id.
func (m *Model) Net(netID string) (*Net, bool) {
	n, ok := m.nets[netID]
	return n, ok
}

// Members returns the sorted member ids of a net. The slice must not be
// modified.
func (m *Model) Members(netID string) []layout.ObjectID {
	n, ok := m.nets[netID]
	if !ok {
		return nil
	}
	return n.Members
}

// Nets returns all nets sorted by id.
func (m *Model) Nets() []*Net {
	out := make([]*Net, len(m.order))
	for i, id := range m.order {
		out[i] = m.nets[id]
	}
	return out
}

// Len returns the number of nets.
func (m *Model) Len() int {
	return len(m.nets)
}

// ObjectCount returns the number of objects across all nets.
func (m *Model) ObjectCount() int {
	return len(m.byObject)
}

// MultiMemberCount returns the number of nets with more than one member.
func (m *Model) MultiMemberCount() int {
	count := 0
	for _, n := range m.nets {
		if len(n.Members) > 1 {
			count++
		}
	}
	return count
}

// Rename returns a new model in which netID carries a user-assigned name.
// The name follows the net id through later recomputes.
func (m *Model) Rename(netID, name string) (*Model, error) {
	n, ok := m.nets[netID]
	if !ok {
		return nil, fmt.Errorf("netlist: rename %s: unknown net", netID)
	}
	if name == "" {
		return nil, fmt.Errorf("netlist: rename %s: empty name", netID)
	}

	out := &Model{
		nets:     make(map[string]*Net, len(m.nets)),
		byObject: m.byObject,
		order:    m.order,
		counter:  m.counter,
	}
	for id, other := range m.nets {
		out.nets[id] = other
	}
	renamed := *n
	renamed.Name = name
	renamed.Manual = true
	out.nets[netID] = &renamed
	return out, nil
}

// SameMembership reports whether two models partition objects identically,
// ignoring net ids and names.
func SameMembership(a, b *Model) bool {
	if a.ObjectCount() != b.ObjectCount() || a.Len() != b.Len() {
		return false
	}
	for obj, netA := range a.byObject {
		netB, ok := b.byObject[obj]
		if !ok {
			return false
		}
		ma, mb := a.nets[netA].Members, b.nets[netB].Members
		if len(ma) != len(mb) || ma[0] != mb[0] {
			return false
		}
	}
	return true
}
