package erc

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrDuplicateKey is returned when a key is registered twice.
	ErrDuplicateKey = errors.New("erc: duplicate check key")
	// ErrUnknownKey is returned for keys not in the registry.
	ErrUnknownKey = errors.New("erc: unknown check key")
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// ValidKey reports whether key is a dotted identifier.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Registry is an append-only catalog of checks. A Registry is safe for
// concurrent reads once built.
type Registry struct {
	checks   []Check
	byKey    map[string]int
	disabled map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:    make(map[string]int),
		disabled: make(map[string]bool),
	}
}

// Register appends a check.
func (r *Registry) Register(c Check) error {
	if !ValidKey(c.Key) {
		return fmt.Errorf("erc: invalid check key %q", c.Key)
	}
	if _, dup := r.byKey[c.Key]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, c.Key)
	}
	switch c.Scope {
	case ScopeNet:
		if c.Net == nil || c.Object != nil {
			return fmt.Errorf("erc: check %s: net scope needs exactly a net func", c.Key)
		}
	case ScopeObject:
		if c.Object == nil || c.Net != nil {
			return fmt.Errorf("erc: check %s: object scope needs exactly an object func", c.Key)
		}
	default:
		return fmt.Errorf("erc: check %s: unknown scope %d", c.Key, c.Scope)
	}
	r.byKey[c.Key] = len(r.checks)
	r.checks = append(r.checks, c)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(c Check) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup returns a check by key.
func (r *Registry) Lookup(key string) (Check, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Check{}, false
	}
	return r.checks[i], true
}

// Checks returns all checks in registration order.
func (r *Registry) Checks() []Check {
	return append([]Check(nil), r.checks...)
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.checks))
	for i, c := range r.checks {
		out[i] = c.Descriptor
	}
	return out
}

// Len returns the number of checks.
func (r *Registry) Len() int {
	return len(r.checks)
}

// Enabled reports whether key is registered and not disabled.
func (r *Registry) Enabled(key string) bool {
	_, ok := r.byKey[key]
	return ok && !r.disabled[key]
}

// Override changes one entry when deriving a registry. With Base set, Key
// is a new check that copies Base's evaluator.
type Override struct {
	Key         string
	Base        string
	Severity    *Severity
	Description *string
	Disabled    bool
}

// Derive returns a new registry with the overrides applied. The receiver is
// not modified.
func (r *Registry) Derive(overrides ...Override) (*Registry, error) {
	out := &Registry{
		checks:   append([]Check(nil), r.checks...),
		byKey:    make(map[string]int, len(r.byKey)),
		disabled: make(map[string]bool, len(r.disabled)),
	}
	for k, v := range r.byKey {
		out.byKey[k] = v
	}
	for k, v := range r.disabled {
		out.disabled[k] = v
	}

	for _, o := range overrides {
		if o.Base != "" {
			base, ok := out.Lookup(o.Base)
			if !ok {
				return nil, fmt.Errorf("%w: %s (base of %s)", ErrUnknownKey, o.Base, o.Key)
			}
			alias := base
			alias.Key = o.Key
			if err := out.Register(alias); err != nil {
				return nil, err
			}
		}

		i, ok := out.byKey[o.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, o.Key)
		}
		c := out.checks[i]
		if o.Severity != nil {
			c.Severity = *o.Severity
		}
		if o.Description != nil {
			c.Description = *o.Description
		}
		out.checks[i] = c
		if o.Disabled {
			out.disabled[o.Key] = true
		}
	}
	return out, nil
}
