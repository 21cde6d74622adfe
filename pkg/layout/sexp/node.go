package sexp

import (
	"fmt"
	"strconv"
	"strings"
)

// Head returns the leading symbol of a list, e.g. "wire" for (wire w1 ...).
func (n *Node) Head() string {
	if n == nil || !n.IsList || len(n.List) == 0 || n.List[0].IsList {
		return ""
	}
	return n.List[0].Atom
}

// Args returns the list elements after the head.
func (n *Node) Args() []*Node {
	if n == nil || !n.IsList || len(n.List) <= 1 {
		return nil
	}
	return n.List[1:]
}

// Find returns the first child list whose head is key.
// Example: Find("at") finds (at 100 50) inside (via v1 (at 100 50)).
func (n *Node) Find(key string) (*Node, bool) {
	for _, c := range n.Args() {
		if c.IsList && c.Head() == key {
			return c, true
		}
	}
	return nil, false
}

// FindAll returns every child list whose head is key.
func (n *Node) FindAll(key string) []*Node {
	var out []*Node
	for _, c := range n.Args() {
		if c.IsList && c.Head() == key {
			out = append(out, c)
		}
	}
	return out
}

// Atoms returns the atom arguments, skipping nested lists.
func (n *Node) Atoms() []string {
	var out []string
	for _, c := range n.Args() {
		if !c.IsList {
			out = append(out, c.Atom)
		}
	}
	return out
}

// String returns the atom at index i (0 is the head).
func (n *Node) String(i int) (string, error) {
	if n == nil || !n.IsList {
		return "", fmt.Errorf("line %d: expected list", n.line())
	}
	if i < 0 || i >= len(n.List) {
		return "", fmt.Errorf("line %d: (%s) needs at least %d values", n.Line, n.Head(), i)
	}
	if n.List[i].IsList {
		return "", fmt.Errorf("line %d: expected atom at position %d of (%s)", n.Line, i, n.Head())
	}
	return n.List[i].Atom, nil
}

// Float parses the atom at index i as a number.
func (n *Node) Float(i int) (float64, error) {
	s, err := n.String(i)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid number %q in (%s)", n.Line, s, n.Head())
	}
	return f, nil
}

// Int parses the atom at index i as an integer.
func (n *Node) Int(i int) (int, error) {
	s, err := n.String(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid integer %q in (%s)", n.Line, s, n.Head())
	}
	return v, nil
}

// Text renders the node back to S-expression syntax.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	if !n.IsList {
		if n.Quoted || n.Atom == "" || strings.ContainsAny(n.Atom, " ()\"\t\n") {
			return strconv.Quote(n.Atom)
		}
		return n.Atom
	}
	parts := make([]string, len(n.List))
	for i, c := range n.List {
		parts[i] = c.Text()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (n *Node) line() int {
	if n == nil {
		return 0
	}
	return n.Line
}
