// Package review keeps the analyst's accept/reject decisions on rule check
// violations stable across runs.
package review

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
)

// ErrUnknownViolation is returned for ids not in the store.
var ErrUnknownViolation = errors.New("review: unknown violation")

// Store holds the violations of one run with their review states. Decisions
// only change the annotation, never the model. A Store is safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	violations []erc.Violation
	byID       map[string]int

	// seeded holds decisions loaded from disk that have not been matched
	// against a run yet.
	seeded map[erc.Key]erc.ReviewState
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int), seeded: make(map[erc.Key]erc.ReviewState)}
}

// Reconcile builds the store for a new run. Violations with the same rule
// key and subject signature as one in prev keep its review state; new ones
// start pending; entries only in prev are dropped. prev may be nil.
func Reconcile(prev *Store, violations []erc.Violation) *Store {
	states := make(map[erc.Key]erc.ReviewState)
	if prev != nil {
		prev.mu.RLock()
		for k, st := range prev.seeded {
			states[k] = st
		}
		for _, v := range prev.violations {
			states[v.Key()] = v.State
		}
		prev.mu.RUnlock()
	}

	s := NewStore()
	s.violations = make([]erc.Violation, len(violations))
	for i, v := range violations {
		v.Subjects = append(v.Subjects[:0:0], v.Subjects...)
		v.State = states[v.Key()]
		s.violations[i] = v
		s.byID[v.ID] = i
	}
	return s
}

// Accept marks a violation accepted.
func (s *Store) Accept(id string) error {
	return s.set(id, erc.Accepted)
}

// Reject marks a violation rejected.
func (s *Store) Reject(id string) error {
	return s.set(id, erc.Rejected)
}

// Reset returns a violation to pending.
func (s *Store) Reset(id string) error {
	return s.set(id, erc.Pending)
}

func (s *Store) set(id string, st erc.ReviewState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownViolation, id)
	}
	s.violations[i].State = st
	return nil
}

// Get returns a violation by id.
func (s *Store) Get(id string) (erc.Violation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return erc.Violation{}, false
	}
	return s.violations[i], true
}

// Len returns the number of violations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.violations)
}

// Violations returns all violations in run order.
func (s *Store) Violations() []erc.Violation {
	return s.Filter(nil)
}

// Filter returns the violations matching pred, in run order. A nil pred
// matches everything.
func (s *Store) Filter(pred func(erc.Violation) bool) []erc.Violation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []erc.Violation
	for _, v := range s.violations {
		if pred == nil || pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// Summary counts violations by review state.
type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Accepted int `json:"accepted" yaml:"accepted"`
	Rejected int `json:"rejected" yaml:"rejected"`
	Pending  int `json:"pending" yaml:"pending"`

	// PendingErrors counts pending violations of error severity.
	PendingErrors int `json:"pending_errors" yaml:"pending_errors"`
}

// Summary returns the state counts.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{Total: len(s.violations)}
	for _, v := range s.violations {
		switch v.State {
		case erc.Accepted:
			sum.Accepted++
		case erc.Rejected:
			sum.Rejected++
		default:
			sum.Pending++
			if v.Severity == erc.SeverityError {
				sum.PendingErrors++
			}
		}
	}
	return sum
}

// Decision is the persisted form of one review decision.
type Decision struct {
	ID      string          `json:"id,omitempty" yaml:"id,omitempty"`
	Rule    string          `json:"rule" yaml:"rule"`
	Subject string          `json:"subject" yaml:"subject"`
	State   erc.ReviewState `json:"state" yaml:"state"`
}

// Decisions returns the non-pending decisions, ordered by rule and subject.
// Seeded decisions that no run has matched yet are included.
func (s *Store) Decisions() []Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Decision
	seen := make(map[erc.Key]bool)
	for _, v := range s.violations {
		k := v.Key()
		seen[k] = true
		if v.State != erc.Pending {
			out = append(out, Decision{ID: v.ID, Rule: k.Rule, Subject: k.Subject, State: v.State})
		}
	}
	for k, st := range s.seeded {
		if !seen[k] && st != erc.Pending {
			out = append(out, Decision{ID: erc.IDFor(k), Rule: k.Rule, Subject: k.Subject, State: st})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rule != out[j].Rule {
			return out[i].Rule < out[j].Rule
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

// LoadDecisions returns a store holding only decisions, ready to be passed
// as prev to Reconcile.
func LoadDecisions(ds []Decision) (*Store, error) {
	s := NewStore()
	for _, d := range ds {
		if d.Rule == "" || d.Subject == "" {
			return nil, fmt.Errorf("review: decision %q: rule and subject are required", d.ID)
		}
		s.seeded[erc.Key{Rule: d.Rule, Subject: d.Subject}] = d.State
	}
	return s, nil
}

// ByState matches violations in the given review state.
func ByState(st erc.ReviewState) func(erc.Violation) bool {
	return func(v erc.Violation) bool { return v.State == st }
}

// BySeverity matches violations of the given severity.
func BySeverity(sev erc.Severity) func(erc.Violation) bool {
	return func(v erc.Violation) bool { return v.Severity == sev }
}

// ByRule matches violations of one rule key.
func ByRule(key string) func(erc.Violation) bool {
	return func(v erc.Violation) bool { return v.RuleKey == key }
}
