// Package layout holds the logic model the connectivity engine reads: chip
// layers, placed objects, gate templates and gate instances.
package layout

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/geometry"
)

// ObjectID identifies a placed object or gate. IDs are never reused.
type ObjectID uint64

func (id ObjectID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// Kind identifies the variant of a placed object.
type Kind int

const (
	KindGatePort Kind = iota
	KindVia
	KindWire
	KindEMarker
	KindModulePort
	KindAnnotation
)

func (k Kind) String() string {
	switch k {
	case KindGatePort:
		return "GatePort"
	case KindVia:
		return "Via"
	case KindWire:
		return "Wire"
	case KindEMarker:
		return "EMarker"
	case KindModulePort:
		return "ModulePort"
	case KindAnnotation:
		return "Annotation"
	default:
		return "Unknown"
	}
}

// Connectable reports whether objects of this kind take part in nets.
func (k Kind) Connectable() bool {
	return k != KindAnnotation
}

// IsPort reports whether the kind is a gate or module port.
func (k Kind) IsPort() bool {
	return k == KindGatePort || k == KindModulePort
}

// PortDirection is the signal direction of a port.
type PortDirection int

const (
	DirUndefined PortDirection = iota
	DirIn
	DirOut
)

func (d PortDirection) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	default:
		return "undefined"
	}
}

// ParsePortDirection converts a port direction name.
func ParsePortDirection(s string) (PortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined":
		return DirUndefined, nil
	case "in":
		return DirIn, nil
	case "out":
		return DirOut, nil
	default:
		return DirUndefined, fmt.Errorf("layout: unknown port direction %q", s)
	}
}

// ViaDirection says which neighbouring layer a via reaches.
type ViaDirection int

const (
	ViaUndefined ViaDirection = iota // reaches both neighbours
	ViaUp                            // layer k to k+1
	ViaDown                          // layer k to k-1
)

func (d ViaDirection) String() string {
	switch d {
	case ViaUp:
		return "up"
	case ViaDown:
		return "down"
	default:
		return "undefined"
	}
}

// ParseViaDirection converts a via direction name.
func ParseViaDirection(s string) (ViaDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined":
		return ViaUndefined, nil
	case "up":
		return ViaUp, nil
	case "down":
		return ViaDown, nil
	default:
		return ViaUndefined, fmt.Errorf("layout: unknown via direction %q", s)
	}
}

// Reach returns the layers other than the via's own that it links to.
func (d ViaDirection) Reach(layer int) []int {
	switch d {
	case ViaUp:
		return []int{layer + 1}
	case ViaDown:
		return []int{layer - 1}
	default:
		return []int{layer - 1, layer + 1}
	}
}

// PortRef ties a gate port object back to its gate and template port.
type PortRef struct {
	Gate     ObjectID // Owning gate
	GateName string   // Gate display name
	Port     string   // Template port name
}

// PlacedObject is one object on a layer. Variant data is only meaningful
// for the kinds noted.
type PlacedObject struct {
	ID    ObjectID
	Kind  Kind
	Layer int
	Name  string
	Shape geometry.Shape

	ViaDirection ViaDirection  // Via
	Direction    PortDirection // GatePort (effective) and ModulePort
	Port         *PortRef      // GatePort
}

// Connectable reports whether the object may join a net.
func (o PlacedObject) Connectable() bool {
	return o.Kind.Connectable()
}

// Label returns a human-readable name for diagnostics.
func (o PlacedObject) Label() string {
	if o.Port != nil {
		return o.Port.GateName + "." + o.Port.Port
	}
	if o.Name != "" {
		return o.Name
	}
	return strings.ToLower(o.Kind.String()) + o.ID.String()
}
