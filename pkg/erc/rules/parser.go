// Package rules reads rule battery files: plain text overrides applied on
// top of the built-in check registry.
//
//	# comments
//	rule open_port { severity error description "port {subject} floats" }
//	rule my.floating uses open_port { severity warning }
//	disable net.undefined_port_direction
package rules

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
)

var parser = participle.MustBuild[File](
	participle.Lexer(Lexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// Parse reads a rule battery. name is used in error positions.
func Parse(name string, r io.Reader) (*File, error) {
	f, err := parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("rules: parse error: %w", err)
	}
	return f, nil
}

// ParseString parses a rule battery held in memory.
func ParseString(name, input string) (*File, error) {
	f, err := parser.ParseString(name, input)
	if err != nil {
		return nil, fmt.Errorf("rules: parse error: %w", err)
	}
	return f, nil
}

// ParseFile parses a rule battery from disk.
func ParseFile(filename string) (*File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("rules: failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(filename, file)
}

// Overrides converts the statements into registry overrides, in file order.
func (f *File) Overrides() ([]erc.Override, error) {
	var out []erc.Override
	for _, st := range f.Statements {
		switch {
		case st.Disable != nil:
			if !erc.ValidKey(st.Disable.Key) {
				return nil, fmt.Errorf("rules: %s: invalid check key %q", st.Disable.Pos, st.Disable.Key)
			}
			out = append(out, erc.Override{Key: st.Disable.Key, Disabled: true})
		case st.Rule != nil:
			o, err := st.Rule.override()
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *Rule) override() (erc.Override, error) {
	if !erc.ValidKey(r.Key) {
		return erc.Override{}, fmt.Errorf("rules: %s: invalid check key %q", r.Pos, r.Key)
	}
	if r.Base != "" && !erc.ValidKey(r.Base) {
		return erc.Override{}, fmt.Errorf("rules: %s: invalid base key %q", r.Pos, r.Base)
	}
	o := erc.Override{Key: r.Key, Base: r.Base}
	for _, p := range r.Properties {
		switch {
		case p.Severity != nil:
			sev, err := erc.ParseSeverity(*p.Severity)
			if err != nil {
				return erc.Override{}, fmt.Errorf("rules: %s: %w", p.Pos, err)
			}
			if sev == erc.SeverityUndefined {
				return erc.Override{}, fmt.Errorf("rules: %s: severity undefined is reserved for diagnostics", p.Pos)
			}
			o.Severity = &sev
		case p.Description != nil:
			d := *p.Description
			o.Description = &d
		case p.Disabled:
			o.Disabled = true
		}
	}
	return o, nil
}

// Apply derives a registry from base with the file's overrides.
func (f *File) Apply(base *erc.Registry) (*erc.Registry, error) {
	overrides, err := f.Overrides()
	if err != nil {
		return nil, err
	}
	reg, err := base.Derive(overrides...)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return reg, nil
}

// LoadRegistry parses filename and applies it to base. An empty filename
// returns base unchanged.
func LoadRegistry(base *erc.Registry, filename string) (*erc.Registry, error) {
	if filename == "" {
		return base, nil
	}
	f, err := ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return f.Apply(base)
}
